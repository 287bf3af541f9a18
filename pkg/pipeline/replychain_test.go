package pipeline

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

func replyMsg(id int64, providerID, replyTo string, minute int) *models.UnifiedMessage {
	m := &models.UnifiedMessage{
		ID:        id,
		MessageID: providerID,
		Timestamp: time.Date(2025, 10, 1, 10, minute, 0, 0, time.UTC),
		Author:    "alice",
		Content:   "message " + providerID,
	}
	if replyTo != "" {
		md, _ := json.Marshal(models.MessageMetadata{ReplyToMessageID: replyTo})
		m.Metadata = md
	}
	return m
}

func TestReplyDepths_ChainIndents(t *testing.T) {
	conv := &Conversation{Messages: []*models.UnifiedMessage{
		replyMsg(1, "a", "", 0),
		replyMsg(2, "b", "a", 1),
		replyMsg(3, "c", "b", 2),
	}}

	depths := ReplyDepths(conv, 5)
	assert.Equal(t, 0, depths[1])
	assert.Equal(t, 1, depths[2])
	assert.Equal(t, 2, depths[3])
}

func TestReplyDepths_OutsideReplyRendersFlat(t *testing.T) {
	conv := &Conversation{Messages: []*models.UnifiedMessage{
		replyMsg(1, "a", "not-in-batch", 0),
		replyMsg(2, "b", "a", 1),
	}}

	depths := ReplyDepths(conv, 5)
	assert.Equal(t, 0, depths[1])
	assert.Equal(t, 1, depths[2])
}

func TestReplyDepths_CycleTerminates(t *testing.T) {
	conv := &Conversation{Messages: []*models.UnifiedMessage{
		replyMsg(1, "a", "b", 0),
		replyMsg(2, "b", "a", 1),
	}}

	depths := ReplyDepths(conv, 5)
	require.Len(t, depths, 2)
	for _, d := range depths {
		assert.LessOrEqual(t, d, 5)
	}
}

func TestReplyDepths_CapsDepth(t *testing.T) {
	msgs := []*models.UnifiedMessage{replyMsg(1, "m1", "", 0)}
	for i := int64(2); i <= 10; i++ {
		msgs = append(msgs, replyMsg(i, "m"+string(rune('0'+i)), "m"+string(rune('0'+i-1)), int(i)))
	}
	conv := &Conversation{Messages: msgs}

	depths := ReplyDepths(conv, 5)
	for _, d := range depths {
		assert.LessOrEqual(t, d, 5)
	}
}

func TestRenderConversation_IndentsReplies(t *testing.T) {
	conv := &Conversation{Messages: []*models.UnifiedMessage{
		replyMsg(1, "a", "", 0),
		replyMsg(2, "b", "", 1),
		replyMsg(3, "c", "b", 2),
	}}

	rendered := RenderConversation(conv, 5)
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.False(t, strings.HasPrefix(lines[0], " "))
	assert.False(t, strings.HasPrefix(lines[1], " "))
	assert.True(t, strings.HasPrefix(lines[2], "  "))
	assert.Contains(t, lines[2], "[3]")
}
