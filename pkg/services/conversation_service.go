package services

import (
	"context"
	"fmt"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// ConversationService assembles the review API's conversation listing.
// A conversation's status is computed from its proposals: changeset
// once any proposal is batched, discarded when every proposal was
// ignored, pending otherwise.
type ConversationService struct {
	client    *database.Client
	messages  *MessageService
	proposals *ProposalService
}

// NewConversationService creates a new ConversationService
func NewConversationService(client *database.Client, messages *MessageService, proposals *ProposalService) *ConversationService {
	return &ConversationService{client: client, messages: messages, proposals: proposals}
}

// ListConversations retrieves conversations in the given review state,
// most recently updated first, with their proposals and source
// messages attached.
func (s *ConversationService) ListConversations(ctx context.Context, tenantID string, status models.ConversationStatus, limit, offset int) ([]*models.ConversationView, int64, error) {
	if tenantID == "" {
		return nil, 0, NewValidationError("tenant_id", "required")
	}
	if status != "" && !status.IsValid() {
		return nil, 0, NewValidationError("status", fmt.Sprintf("unknown status '%s'", status))
	}

	having := conversationStatusHaving(status)
	grouped := `SELECT conversation_id FROM doc_proposals WHERE tenant_id = $1 GROUP BY conversation_id` + having

	var total int64
	if err := s.client.GetContext(ctx, &total,
		`SELECT count(*) FROM (`+grouped+`) matched`, tenantID); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	limit = normalizeLimit(limit)
	var conversationIDs []string
	err := s.client.SelectContext(ctx, &conversationIDs,
		grouped+` ORDER BY max(created_at) DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(conversationIDs) == 0 {
		return nil, total, nil
	}

	proposals, err := s.proposals.ProposalsByConversations(ctx, conversationIDs)
	if err != nil {
		return nil, 0, err
	}
	messages, err := s.messages.MessagesByConversations(ctx, conversationIDs)
	if err != nil {
		return nil, 0, err
	}

	proposalsByConv := make(map[string][]*models.DocProposal, len(conversationIDs))
	for _, p := range proposals {
		proposalsByConv[p.ConversationID] = append(proposalsByConv[p.ConversationID], p)
	}
	messagesByConv := make(map[string][]*models.UnifiedMessage, len(conversationIDs))
	for _, m := range messages {
		if m.ConversationID != nil {
			messagesByConv[*m.ConversationID] = append(messagesByConv[*m.ConversationID], m)
		}
	}

	views := make([]*models.ConversationView, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		convProposals := proposalsByConv[id]
		views = append(views, &models.ConversationView{
			ConversationID: id,
			TenantID:       tenantID,
			Status:         models.ComputeConversationStatus(convProposals),
			Proposals:      convProposals,
			Messages:       messagesByConv[id],
		})
	}

	return views, total, nil
}

// GetConversation retrieves one conversation with its proposals and
// messages
func (s *ConversationService) GetConversation(ctx context.Context, tenantID, conversationID string) (*models.ConversationView, error) {
	if conversationID == "" {
		return nil, NewValidationError("conversation_id", "required")
	}

	proposals, err := s.proposals.ProposalsByConversations(ctx, []string{conversationID})
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.MessagesByConversations(ctx, []string{conversationID})
	if err != nil {
		return nil, err
	}
	if len(proposals) == 0 && len(messages) == 0 {
		return nil, fmt.Errorf("conversation '%s': %w", conversationID, ErrNotFound)
	}

	return &models.ConversationView{
		ConversationID: conversationID,
		TenantID:       tenantID,
		Status:         models.ComputeConversationStatus(proposals),
		Proposals:      proposals,
		Messages:       messages,
	}, nil
}

// conversationStatusHaving encodes the status rule as a HAVING clause
// over a conversation's grouped proposals.
func conversationStatusHaving(status models.ConversationStatus) string {
	switch status {
	case models.ConversationStatusChangeset:
		return ` HAVING count(*) FILTER (WHERE batch_id IS NOT NULL) > 0`
	case models.ConversationStatusDiscarded:
		return ` HAVING count(*) FILTER (WHERE status <> 'ignored') = 0
			AND count(*) FILTER (WHERE batch_id IS NOT NULL) = 0`
	case models.ConversationStatusPending:
		return ` HAVING count(*) FILTER (WHERE batch_id IS NOT NULL) = 0
			AND count(*) FILTER (WHERE status <> 'ignored') > 0`
	}
	return ``
}
