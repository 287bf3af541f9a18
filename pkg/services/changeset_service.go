package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const batchColumns = `id, batch_id, tenant_id, status, pr_title, pr_body, pr_url, pr_number,
	branch_name, total_proposals, affected_files_json, created_at, submitted_at, submitted_by`

// ChangesetService manages batches of approved proposals on their way
// into a pull request
type ChangesetService struct {
	client    *database.Client
	proposals *ProposalService
}

// NewChangesetService creates a new ChangesetService
func NewChangesetService(client *database.Client, proposals *ProposalService) *ChangesetService {
	return &ChangesetService{client: client, proposals: proposals}
}

// CreateBatch creates a draft changeset batch from approved proposals
// and freezes them. The batch and the freezes commit atomically.
func (s *ChangesetService) CreateBatch(ctx context.Context, tenantID string, req models.CreateBatchRequest) (*models.ChangesetBatch, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}
	if len(req.ProposalIDs) == 0 {
		return nil, NewValidationError("proposal_ids", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	batchID := uuid.New().String()

	var out models.ChangesetBatch
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		frozen, err := s.proposals.AttachProposalsToBatchTx(ctx, tx, tenantID, req.ProposalIDs, batchID)
		if err != nil {
			return err
		}

		affected, err := json.Marshal(affectedPages(frozen))
		if err != nil {
			return fmt.Errorf("failed to encode affected files: %w", err)
		}

		return tx.GetContext(ctx, &out,
			`INSERT INTO changeset_batches (batch_id, tenant_id, status, total_proposals, affected_files_json)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+batchColumns,
			batchID, tenantID, models.BatchStatusDraft, len(frozen), affected)
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// GetBatch retrieves a changeset batch by its batch id
func (s *ChangesetService) GetBatch(ctx context.Context, batchID string) (*models.ChangesetBatch, error) {
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}

	var batch models.ChangesetBatch
	err := s.client.GetContext(ctx, &batch,
		`SELECT `+batchColumns+` FROM changeset_batches WHERE batch_id = $1`, batchID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("batch '%s': %w", batchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &batch, nil
}

// BatchProposals retrieves the proposals frozen into a batch
func (s *ChangesetService) BatchProposals(ctx context.Context, batchID string) ([]*models.DocProposal, error) {
	proposals, _, err := s.proposals.ListProposals(ctx, models.ProposalFilters{BatchID: batchID, Limit: 500})
	return proposals, err
}

// MarkSubmitted transitions a draft batch to submitted and records the
// pull request coordinates. Only draft batches can be submitted.
func (s *ChangesetService) MarkSubmitted(ctx context.Context, batchID string, pr models.GeneratePRRequest, prURL string, prNumber int, branchName string) (*models.ChangesetBatch, error) {
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}
	if pr.PRTitle == "" {
		return nil, NewValidationError("pr_title", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out models.ChangesetBatch
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if current.Status != models.BatchStatusDraft {
			return fmt.Errorf("batch '%s' is %s: %w", batchID, current.Status, ErrBatchNotDraft)
		}

		var submittedBy *string
		if pr.SubmittedBy != "" {
			submittedBy = &pr.SubmittedBy
		}
		var url, branch *string
		if prURL != "" {
			url = &prURL
		}
		if branchName != "" {
			branch = &branchName
		}
		var number *int
		if prNumber > 0 {
			number = &prNumber
		}

		return tx.GetContext(ctx, &out,
			`UPDATE changeset_batches
			SET status = $2, pr_title = $3, pr_body = $4, pr_url = $5, pr_number = $6,
				branch_name = $7, submitted_at = now(), submitted_by = $8
			WHERE batch_id = $1
			RETURNING `+batchColumns,
			batchID, models.BatchStatusSubmitted, pr.PRTitle, pr.PRBody, url, number, branch, submittedBy)
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// SetBatchStatus moves a submitted batch to merged or closed, tracking
// the fate of its pull request.
func (s *ChangesetService) SetBatchStatus(ctx context.Context, batchID string, status models.BatchStatus) (*models.ChangesetBatch, error) {
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}
	if status != models.BatchStatusMerged && status != models.BatchStatusClosed {
		return nil, NewValidationError("status", fmt.Sprintf("cannot transition to '%s'", status))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out models.ChangesetBatch
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if current.Status == models.BatchStatusDraft {
			return fmt.Errorf("batch '%s' was never submitted: %w", batchID, ErrBatchNotDraft)
		}

		return tx.GetContext(ctx, &out,
			`UPDATE changeset_batches SET status = $2 WHERE batch_id = $1 RETURNING `+batchColumns,
			batchID, status)
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// History retrieves submitted batches newest first, with the total for
// pagination. Draft batches are excluded; the history is the immutable
// record of what went out.
func (s *ChangesetService) History(ctx context.Context, tenantID string, limit, offset int) ([]*models.ChangesetBatch, int64, error) {
	var conds string
	args := []any{models.BatchStatusDraft}
	if tenantID != "" {
		conds = ` AND tenant_id = $2`
		args = append(args, tenantID)
	}

	var total int64
	if err := s.client.GetContext(ctx, &total,
		`SELECT count(*) FROM changeset_batches WHERE status <> $1`+conds, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count batch history: %w", err)
	}

	limit = normalizeLimit(limit)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM changeset_batches WHERE status <> $1%s
		ORDER BY submitted_at DESC NULLS LAST, id DESC LIMIT $%d OFFSET $%d`,
		batchColumns, conds, len(args)-1, len(args))

	var batches []*models.ChangesetBatch
	if err := s.client.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list batch history: %w", err)
	}

	return batches, total, nil
}

// affectedPages returns the sorted distinct pages touched by the
// proposals.
func affectedPages(proposals []*models.DocProposal) []string {
	set := make(map[string]bool, len(proposals))
	for _, p := range proposals {
		set[p.Page] = true
	}
	pages := make([]string, 0, len(set))
	for page := range set {
		pages = append(pages, page)
	}
	sort.Strings(pages)
	return pages
}

// lockBatch loads a batch row with FOR UPDATE.
func lockBatch(ctx context.Context, tx *sqlx.Tx, batchID string) (*models.ChangesetBatch, error) {
	var batch models.ChangesetBatch
	err := tx.GetContext(ctx, &batch,
		`SELECT `+batchColumns+` FROM changeset_batches WHERE batch_id = $1 FOR UPDATE`, batchID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("batch '%s': %w", batchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock batch: %w", err)
	}
	return &batch, nil
}
