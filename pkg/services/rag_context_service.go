package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const ragContextColumns = `id, conversation_id, retrieved_docs_json, total_tokens, created_at`

// RagContextService manages per-conversation retrieval results
type RagContextService struct {
	client *database.Client
}

// NewRagContextService creates a new RagContextService
func NewRagContextService(client *database.Client) *RagContextService {
	return &RagContextService{client: client}
}

// CreateRagContextTx stores a conversation's retrieval result inside
// the caller's transaction
func (s *RagContextService) CreateRagContextTx(ctx context.Context, tx *sqlx.Tx, rc *models.MessageRagContext) error {
	if rc.ConversationID == "" {
		return NewValidationError("conversation_id", "required")
	}
	if rc.TotalTokens < 0 {
		return NewValidationError("total_tokens", "must not be negative")
	}

	err := tx.GetContext(ctx, rc,
		`INSERT INTO message_rag_contexts (conversation_id, retrieved_docs_json, total_tokens)
		VALUES ($1, $2, $3)
		RETURNING `+ragContextColumns,
		rc.ConversationID, rc.RetrievedDocs, rc.TotalTokens)
	if err != nil {
		return fmt.Errorf("failed to store rag context: %w", err)
	}

	return nil
}

// GetRagContext retrieves the most recent retrieval result for a
// conversation
func (s *RagContextService) GetRagContext(ctx context.Context, conversationID string) (*models.MessageRagContext, error) {
	if conversationID == "" {
		return nil, NewValidationError("conversation_id", "required")
	}

	var rc models.MessageRagContext
	err := s.client.GetContext(ctx, &rc,
		`SELECT `+ragContextColumns+` FROM message_rag_contexts
		WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		conversationID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("rag context for '%s': %w", conversationID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rag context: %w", err)
	}

	return &rc, nil
}
