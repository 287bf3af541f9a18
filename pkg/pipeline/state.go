// Package pipeline runs the staged batch pipeline: filter, classify,
// enrich(RAG), generate, context-enrich, ruleset-review, validate,
// condense. Steps accumulate results on a shared State; the batch
// processor commits everything in one transaction afterwards.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/docindex"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/llm"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// Gateway is the subset of the LLM gateway the pipeline calls.
type Gateway interface {
	Call(ctx context.Context, in llm.CallInput) (*llm.CallResult, error)
}

// Conversation is a set of batch messages grouped by channel/topic and
// time proximity. Messages are chronological.
type Conversation struct {
	ID       string
	Channel  string
	Topic    string
	Messages []*models.UnifiedMessage
}

// MessageIDs returns the database ids of the member messages.
func (c *Conversation) MessageIDs() []int64 {
	ids := make([]int64, 0, len(c.Messages))
	for _, m := range c.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// State carries one batch through the pipeline. Steps read earlier
// results and append their own; nothing is persisted until the
// processor commits the state.
type State struct {
	TenantID string
	Tenant   *config.TenantConfig
	StreamID string
	BatchID  string

	WindowStart time.Time
	WindowEnd   time.Time

	// ContextMessages inform the classifier but are never classified.
	ContextMessages []*models.UnifiedMessage

	// Messages are the batch messages still in play; the filter step
	// shrinks this slice.
	Messages []*models.UnifiedMessage

	// DroppedMessageIDs collects ids removed by the filter step. They
	// are marked COMPLETED without classification at commit.
	DroppedMessageIDs []int64

	// Conversations is populated lazily once grouping has run.
	Conversations []*Conversation

	Classifications []*models.MessageClassification

	// RagContexts is keyed by conversation id.
	RagContexts map[string]*models.MessageRagContext

	Proposals []*models.DocProposal

	// RejectedProposals were discarded by the ruleset or validation;
	// they are stored as ignored with a discard reason.
	RejectedProposals []*models.DocProposal

	DocIndex     *docindex.DocIndex
	CompactIndex string

	Ruleset models.RulesetSections

	Pipeline *config.PipelineConfig

	summaries map[string]json.RawMessage
}

// SetSummary records a step's output summary for the run log.
func (s *State) SetSummary(step string, v any) {
	if s.summaries == nil {
		s.summaries = make(map[string]json.RawMessage)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.summaries[step] = encoded
}

// Summary returns a step's recorded output summary, or nil.
func (s *State) Summary(step string) json.RawMessage {
	return s.summaries[step]
}

// ClassificationFor returns the classification for a message id, or nil.
func (s *State) ClassificationFor(messageID int64) *models.MessageClassification {
	for _, c := range s.Classifications {
		if c.MessageID == messageID {
			return c
		}
	}
	return nil
}

// ValuableConversations returns the conversations containing at least
// one classified-valuable message.
func (s *State) ValuableConversations() []*Conversation {
	valuable := make(map[int64]bool, len(s.Classifications))
	for _, c := range s.Classifications {
		valuable[c.MessageID] = true
	}

	var out []*Conversation
	for _, conv := range s.Conversations {
		for _, m := range conv.Messages {
			if valuable[m.ID] {
				out = append(out, conv)
				break
			}
		}
	}
	return out
}

// ConversationByID returns a grouped conversation, or nil.
func (s *State) ConversationByID(id string) *Conversation {
	for _, conv := range s.Conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

func (s *State) pipelineConfig() *config.PipelineConfig {
	if s.Pipeline != nil {
		return s.Pipeline
	}
	return config.DefaultPipelineConfig()
}
