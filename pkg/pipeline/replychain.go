package pipeline

import (
	"fmt"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// ReplyDepths computes the indentation depth of every message in a
// conversation. A message replying to another member sits one level
// under its parent, capped at depthCap. Replies pointing outside the
// conversation render flat; cycles terminate via a visited set.
func ReplyDepths(conv *Conversation, depthCap int) map[int64]int {
	if depthCap <= 0 {
		depthCap = 5
	}

	byProviderID := make(map[string]*models.UnifiedMessage, len(conv.Messages))
	for _, m := range conv.Messages {
		byProviderID[m.MessageID] = m
	}

	depths := make(map[int64]int, len(conv.Messages))
	var depthOf func(m *models.UnifiedMessage, visited map[int64]bool) int
	depthOf = func(m *models.UnifiedMessage, visited map[int64]bool) int {
		if d, ok := depths[m.ID]; ok {
			return d
		}
		if visited[m.ID] {
			return 0
		}
		visited[m.ID] = true

		depth := 0
		if replyTo := m.DecodedMetadata().ReplyToMessageID; replyTo != "" {
			if parent, ok := byProviderID[replyTo]; ok && parent.ID != m.ID {
				depth = depthOf(parent, visited) + 1
				if depth > depthCap {
					depth = depthCap
				}
			}
		}
		depths[m.ID] = depth
		return depth
	}

	for _, m := range conv.Messages {
		depthOf(m, make(map[int64]bool))
	}
	return depths
}

// RenderConversation formats a conversation for a prompt, indenting
// replies under their parents. The message's database id leads each
// line so the model can reference messages by id.
func RenderConversation(conv *Conversation, depthCap int) string {
	depths := ReplyDepths(conv, depthCap)

	var b strings.Builder
	for _, m := range conv.Messages {
		indent := strings.Repeat("  ", depths[m.ID])
		fmt.Fprintf(&b, "%s[%d] %s (%s): %s\n",
			indent, m.ID, m.Author, m.Timestamp.UTC().Format("15:04"), m.Content)
	}
	return b.String()
}

// RenderMessages formats a flat message list with ids and timestamps,
// used for classifier context and batch sections.
func RenderMessages(messages []*models.UnifiedMessage) string {
	var b strings.Builder
	for _, m := range messages {
		channel := channelOf(m)
		if topic := m.DecodedMetadata().Topic; topic != "" {
			channel = channel + "/" + topic
		}
		fmt.Fprintf(&b, "[%d] %s %s %s: %s\n",
			m.ID, m.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), channel, m.Author, m.Content)
	}
	return b.String()
}
