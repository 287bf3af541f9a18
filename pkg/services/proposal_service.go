package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const proposalColumns = `id, tenant_id, conversation_id, message_ids_json, page, update_type,
	section, location_json, suggested_text, edited_text, reasoning, confidence, status,
	discard_reason, enrichment_json, quality_flags_json, batch_id, pr_application_status,
	pr_application_error, created_at, reviewed_at, reviewed_by, edited_at, edited_by`

// Default discard reason when a reviewer ignores a proposal without
// giving one.
const defaultDiscardReason = "admin discarded change"

// ProposalService manages documentation proposals through their review
// lifecycle. Proposals attached to a changeset batch are frozen: text
// edits and status transitions fail with ErrProposalFrozen.
type ProposalService struct {
	client *database.Client
}

// NewProposalService creates a new ProposalService
func NewProposalService(client *database.Client) *ProposalService {
	return &ProposalService{client: client}
}

// CreateProposalsTx writes generated proposals inside the caller's
// transaction, filling ids and timestamps on the passed structs.
func (s *ProposalService) CreateProposalsTx(ctx context.Context, tx *sqlx.Tx, proposals []*models.DocProposal) error {
	for _, p := range proposals {
		if p.TenantID == "" {
			return NewValidationError("tenant_id", "required")
		}
		if p.ConversationID == "" {
			return NewValidationError("conversation_id", "required")
		}
		if p.Page == "" {
			return NewValidationError("page", "required")
		}
		if !p.UpdateType.IsValid() {
			return NewValidationError("update_type", fmt.Sprintf("unknown update type '%s'", p.UpdateType))
		}
		if p.SuggestedText == "" && p.UpdateType != models.UpdateTypeDelete {
			return NewValidationError("suggested_text", "required")
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return NewValidationError("confidence", "must be between 0 and 1")
		}
	}

	for _, p := range proposals {
		status := p.Status
		if status == "" {
			status = models.ProposalStatusPending
		}
		if !status.IsValid() {
			return NewValidationError("status", fmt.Sprintf("unknown status '%s'", status))
		}
		messageIDs := p.MessageIDs
		if len(messageIDs) == 0 {
			messageIDs = []byte(`[]`)
		}

		err := tx.GetContext(ctx, p,
			`INSERT INTO doc_proposals
				(tenant_id, conversation_id, message_ids_json, page, update_type, section,
				location_json, suggested_text, reasoning, confidence, status, discard_reason,
				enrichment_json, quality_flags_json)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING `+proposalColumns,
			p.TenantID, p.ConversationID, messageIDs, p.Page, p.UpdateType, p.Section,
			p.Location, p.SuggestedText, p.Reasoning, p.Confidence, status, p.DiscardReason,
			p.Enrichment, p.QualityFlags)
		if err != nil {
			return fmt.Errorf("failed to create proposal for page '%s': %w", p.Page, err)
		}
	}

	return nil
}

// GetProposal retrieves a proposal by id
func (s *ProposalService) GetProposal(ctx context.Context, id int64) (*models.DocProposal, error) {
	var p models.DocProposal
	err := s.client.GetContext(ctx, &p,
		`SELECT `+proposalColumns+` FROM doc_proposals WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("proposal %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	return &p, nil
}

// ListProposals retrieves proposals matching the filters, newest first,
// with the total match count for pagination.
func (s *ProposalService) ListProposals(ctx context.Context, filters models.ProposalFilters) ([]*models.DocProposal, int64, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if filters.TenantID != "" {
		add("tenant_id = ", filters.TenantID)
	}
	if filters.Status != "" {
		if !filters.Status.IsValid() {
			return nil, 0, NewValidationError("status", fmt.Sprintf("unknown status '%s'", filters.Status))
		}
		add("status = ", filters.Status)
	}
	if filters.ConversationID != "" {
		add("conversation_id = ", filters.ConversationID)
	}
	if filters.Page != "" {
		add("page = ", filters.Page)
	}
	if filters.BatchID != "" {
		add("batch_id = ", filters.BatchID)
	}
	if filters.Unbatched {
		conds = append(conds, "batch_id IS NULL")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.client.GetContext(ctx, &total,
		`SELECT count(*) FROM doc_proposals`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count proposals: %w", err)
	}

	limit := normalizeLimit(filters.Limit)
	args = append(args, limit, filters.Offset)
	query := fmt.Sprintf(`SELECT %s FROM doc_proposals%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		proposalColumns, where, len(args)-1, len(args))

	var proposals []*models.DocProposal
	if err := s.client.SelectContext(ctx, &proposals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list proposals: %w", err)
	}

	return proposals, total, nil
}

// ProposalsByConversations retrieves all proposals of the given
// conversations, oldest first.
func (s *ProposalService) ProposalsByConversations(ctx context.Context, conversationIDs []string) ([]*models.DocProposal, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+proposalColumns+` FROM doc_proposals
		WHERE conversation_id IN (?) ORDER BY created_at ASC, id ASC`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation query: %w", err)
	}

	var proposals []*models.DocProposal
	if err := s.client.SelectContext(ctx, &proposals, s.client.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get conversation proposals: %w", err)
	}

	return proposals, nil
}

// UpdateProposalText records a reviewer's edit. The generated text is
// preserved; the edit lands in edited_text. Frozen proposals reject the
// edit with ErrProposalFrozen.
func (s *ProposalService) UpdateProposalText(ctx context.Context, id int64, req models.UpdateProposalTextRequest) (*models.DocProposal, error) {
	if req.SuggestedText == "" {
		return nil, NewValidationError("suggested_text", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out models.DocProposal
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := lockProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Frozen() {
			return fmt.Errorf("proposal %d: %w", id, ErrProposalFrozen)
		}

		var editedBy *string
		if req.EditedBy != "" {
			editedBy = &req.EditedBy
		}
		return tx.GetContext(ctx, &out,
			`UPDATE doc_proposals
			SET edited_text = $2, edited_at = now(), edited_by = $3
			WHERE id = $1
			RETURNING `+proposalColumns,
			id, req.SuggestedText, editedBy)
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// SetProposalStatus transitions a proposal between pending, approved
// and ignored. The transition is idempotent. Frozen proposals reject
// the transition with ErrProposalFrozen.
func (s *ProposalService) SetProposalStatus(ctx context.Context, id int64, req models.SetProposalStatusRequest) (*models.DocProposal, error) {
	if !req.Status.IsValid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status '%s'", req.Status))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out models.DocProposal
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := lockProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Frozen() {
			return fmt.Errorf("proposal %d: %w", id, ErrProposalFrozen)
		}

		// Ignored proposals always carry a reason; moving away from
		// ignored clears it.
		var discardReason *string
		if req.Status == models.ProposalStatusIgnored {
			reason := req.DiscardReason
			if reason == "" {
				reason = defaultDiscardReason
			}
			discardReason = &reason
		}
		var reviewedBy *string
		if req.ReviewedBy != "" {
			reviewedBy = &req.ReviewedBy
		}

		return tx.GetContext(ctx, &out,
			`UPDATE doc_proposals
			SET status = $2, discard_reason = $3, reviewed_at = now(), reviewed_by = $4
			WHERE id = $1
			RETURNING `+proposalColumns,
			id, req.Status, discardReason, reviewedBy)
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// AttachProposalsToBatchTx freezes approved proposals onto a changeset
// batch inside the caller's transaction and returns the frozen rows.
// Every proposal must exist, belong to the tenant, be approved and not
// already batched.
func (s *ProposalService) AttachProposalsToBatchTx(ctx context.Context, tx *sqlx.Tx, tenantID string, ids []int64, batchID string) ([]*models.DocProposal, error) {
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}
	if len(ids) == 0 {
		return nil, NewValidationError("proposal_ids", "required")
	}

	query, args, err := sqlx.In(
		`SELECT `+proposalColumns+` FROM doc_proposals WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build proposal lock query: %w", err)
	}

	var proposals []*models.DocProposal
	if err := tx.SelectContext(ctx, &proposals, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to lock proposals: %w", err)
	}

	seen := make(map[int64]bool, len(proposals))
	for _, p := range proposals {
		seen[p.ID] = true
		if p.TenantID != tenantID {
			return nil, NewValidationError("proposal_ids", fmt.Sprintf("proposal %d belongs to another tenant", p.ID))
		}
		if p.Frozen() {
			return nil, fmt.Errorf("proposal %d: %w", p.ID, ErrProposalFrozen)
		}
		if p.Status != models.ProposalStatusApproved {
			return nil, NewValidationError("proposal_ids", fmt.Sprintf("proposal %d is not approved", p.ID))
		}
	}
	for _, id := range ids {
		if !seen[id] {
			return nil, fmt.Errorf("proposal %d: %w", id, ErrNotFound)
		}
	}

	query, args, err = sqlx.In(
		`UPDATE doc_proposals SET batch_id = ? WHERE id IN (?)`, batchID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch attach query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to attach proposals to batch: %w", err)
	}

	for _, p := range proposals {
		id := batchID
		p.BatchID = &id
	}

	return proposals, nil
}

// SetPRApplicationTx records whether a proposal could be applied to the
// documentation tree during PR assembly.
func (s *ProposalService) SetPRApplicationTx(ctx context.Context, tx *sqlx.Tx, id int64, status models.PRApplicationStatus, applyErr *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE doc_proposals SET pr_application_status = $2, pr_application_error = $3 WHERE id = $1`,
		id, status, applyErr)
	if err != nil {
		return fmt.Errorf("failed to set pr application status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("proposal %d: %w", id, ErrNotFound)
	}

	return nil
}

// PendingCountForPage counts other pending proposals touching a page,
// feeding the change-impact enrichment.
func (s *ProposalService) PendingCountForPage(ctx context.Context, tenantID, page string, excludeID int64) (int, error) {
	if tenantID == "" {
		return 0, NewValidationError("tenant_id", "required")
	}
	if page == "" {
		return 0, NewValidationError("page", "required")
	}

	var count int
	err := s.client.GetContext(ctx, &count,
		`SELECT count(*) FROM doc_proposals
		WHERE tenant_id = $1 AND page = $2 AND status = $3 AND id <> $4`,
		tenantID, page, models.ProposalStatusPending, excludeID)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending proposals for page: %w", err)
	}

	return count, nil
}

// lockProposal loads a proposal row with FOR UPDATE.
func lockProposal(ctx context.Context, tx *sqlx.Tx, id int64) (*models.DocProposal, error) {
	var p models.DocProposal
	err := tx.GetContext(ctx, &p,
		`SELECT `+proposalColumns+` FROM doc_proposals WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("proposal %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock proposal: %w", err)
	}
	return &p, nil
}
