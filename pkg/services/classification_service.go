package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const classificationColumns = `id, message_id, batch_id, category, doc_value_reason,
	suggested_doc_page, rag_search_criteria_json, model_used, created_at`

// ClassificationService manages per-message classifier verdicts
type ClassificationService struct {
	client *database.Client
}

// NewClassificationService creates a new ClassificationService
func NewClassificationService(client *database.Client) *ClassificationService {
	return &ClassificationService{client: client}
}

// CreateClassificationsTx writes classifier verdicts inside the
// caller's transaction. A message carries at most one classification;
// re-running a batch overwrites the previous verdict so retries stay
// idempotent.
func (s *ClassificationService) CreateClassificationsTx(ctx context.Context, tx *sqlx.Tx, rows []*models.MessageClassification) error {
	for _, row := range rows {
		if row.MessageID <= 0 {
			return NewValidationError("message_id", "required")
		}
		if row.BatchID == "" {
			return NewValidationError("batch_id", "required")
		}
		if !row.Category.IsValid() {
			return NewValidationError("category", fmt.Sprintf("unknown category '%s'", row.Category))
		}
		if row.DocValueReason == "" {
			return NewValidationError("doc_value_reason", "required")
		}
	}

	for _, row := range rows {
		err := tx.GetContext(ctx, row,
			`INSERT INTO message_classifications
				(message_id, batch_id, category, doc_value_reason, suggested_doc_page, rag_search_criteria_json, model_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (message_id) DO UPDATE SET
				batch_id = EXCLUDED.batch_id,
				category = EXCLUDED.category,
				doc_value_reason = EXCLUDED.doc_value_reason,
				suggested_doc_page = EXCLUDED.suggested_doc_page,
				rag_search_criteria_json = EXCLUDED.rag_search_criteria_json,
				model_used = EXCLUDED.model_used
			RETURNING `+classificationColumns,
			row.MessageID, row.BatchID, row.Category, row.DocValueReason,
			row.SuggestedDocPage, row.RagSearchCriteria, row.ModelUsed)
		if err != nil {
			return fmt.Errorf("failed to store classification for message %d: %w", row.MessageID, err)
		}
	}

	return nil
}

// GetClassificationsByBatch retrieves the classifications written by
// one pipeline run
func (s *ClassificationService) GetClassificationsByBatch(ctx context.Context, batchID string) ([]*models.MessageClassification, error) {
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}

	var rows []*models.MessageClassification
	err := s.client.SelectContext(ctx, &rows,
		`SELECT `+classificationColumns+` FROM message_classifications
		WHERE batch_id = $1 ORDER BY message_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch classifications: %w", err)
	}

	return rows, nil
}

// GetClassificationsByMessages retrieves classifications for the given
// message ids. Messages without a verdict are simply absent.
func (s *ClassificationService) GetClassificationsByMessages(ctx context.Context, messageIDs []int64) ([]*models.MessageClassification, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+classificationColumns+` FROM message_classifications
		WHERE message_id IN (?) ORDER BY message_id`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build classification query: %w", err)
	}

	var rows []*models.MessageClassification
	if err := s.client.SelectContext(ctx, &rows, s.client.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get message classifications: %w", err)
	}

	return rows, nil
}
