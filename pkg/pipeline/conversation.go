package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// GroupConversations buckets batch messages into conversations. A
// conversation holds consecutive messages of one (channel, topic) whose
// total span stays within ConversationTimeWindow, with no gap above
// MinConversationGap, hard-capped at MaxConversationSize. Oversized
// runs split exactly at the cap.
func GroupConversations(streamID string, messages []*models.UnifiedMessage, cfg *config.PipelineConfig) []*Conversation {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}

	type groupKey struct {
		channel string
		topic   string
	}

	groups := make(map[groupKey][]*models.UnifiedMessage)
	var order []groupKey
	for _, m := range messages {
		key := groupKey{channel: channelOf(m), topic: m.DecodedMetadata().Topic}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].channel != order[j].channel {
			return order[i].channel < order[j].channel
		}
		return order[i].topic < order[j].topic
	})

	var conversations []*Conversation
	for _, key := range order {
		run := groups[key]
		sort.SliceStable(run, func(i, j int) bool {
			if !run[i].Timestamp.Equal(run[j].Timestamp) {
				return run[i].Timestamp.Before(run[j].Timestamp)
			}
			return run[i].ID < run[j].ID
		})

		var current *Conversation
		var bucketStart time.Time
		for _, m := range run {
			split := current == nil ||
				len(current.Messages) >= cfg.MaxConversationSize ||
				m.Timestamp.Sub(bucketStart) > cfg.ConversationTimeWindow ||
				m.Timestamp.Sub(current.Messages[len(current.Messages)-1].Timestamp) > cfg.MinConversationGap

			if split {
				bucketStart = m.Timestamp
				current = &Conversation{
					ID:      conversationID(streamID, key.channel, key.topic, bucketStart, m.MessageID),
					Channel: key.channel,
					Topic:   key.topic,
				}
				conversations = append(conversations, current)
			}
			current.Messages = append(current.Messages, m)
		}
	}
	return conversations
}

// conversationID derives the stable conversation identifier from the
// grouping coordinates and the first member message.
func conversationID(streamID, channel, topic string, bucketStart time.Time, firstMessageID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00%s", streamID, channel, topic, bucketStart.UTC().Unix(), firstMessageID)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func channelOf(m *models.UnifiedMessage) string {
	if m.Channel != nil {
		return *m.Channel
	}
	return ""
}
