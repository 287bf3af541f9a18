package models

// ConversationStatus is the review-facing state of a conversation,
// computed from its proposals: changeset once any proposal joined a
// batch, discarded when every proposal was ignored, pending otherwise.
type ConversationStatus string

const (
	ConversationStatusPending   ConversationStatus = "pending"
	ConversationStatusChangeset ConversationStatus = "changeset"
	ConversationStatusDiscarded ConversationStatus = "discarded"
)

func (s ConversationStatus) IsValid() bool {
	switch s {
	case ConversationStatusPending, ConversationStatusChangeset, ConversationStatusDiscarded:
		return true
	}
	return false
}

// ConversationView is one conversation with its proposals and source
// messages, as returned by the review API.
type ConversationView struct {
	ConversationID string             `json:"conversation_id"`
	TenantID       string             `json:"tenant_id"`
	Status         ConversationStatus `json:"status"`
	Proposals      []*DocProposal     `json:"proposals"`
	Messages       []*UnifiedMessage  `json:"messages"`
}

// ComputeConversationStatus derives a conversation's review state from
// its proposals.
func ComputeConversationStatus(proposals []*DocProposal) ConversationStatus {
	allIgnored := len(proposals) > 0
	for _, p := range proposals {
		if p.Frozen() {
			return ConversationStatusChangeset
		}
		if p.Status != ProposalStatusIgnored {
			allIgnored = false
		}
	}
	if allIgnored {
		return ConversationStatusDiscarded
	}
	return ConversationStatusPending
}
