package models

import (
	"encoding/json"
	"time"
)

// ChangesetBatch aggregates approved proposals into one draft PR.
// Once status leaves draft, all linked proposals are frozen.
type ChangesetBatch struct {
	ID             int64           `db:"id" json:"id"`
	BatchID        string          `db:"batch_id" json:"batch_id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	Status         BatchStatus     `db:"status" json:"status"`
	PRTitle        *string         `db:"pr_title" json:"pr_title,omitempty"`
	PRBody         *string         `db:"pr_body" json:"pr_body,omitempty"`
	PRURL          *string         `db:"pr_url" json:"pr_url,omitempty"`
	PRNumber       *int            `db:"pr_number" json:"pr_number,omitempty"`
	BranchName     *string         `db:"branch_name" json:"branch_name,omitempty"`
	TotalProposals int             `db:"total_proposals" json:"total_proposals"`
	AffectedFiles  json.RawMessage `db:"affected_files_json" json:"affected_files,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	SubmittedAt    *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	SubmittedBy    *string         `db:"submitted_by" json:"submitted_by,omitempty"`
}

// CreateBatchRequest is the POST /batches payload.
type CreateBatchRequest struct {
	ProposalIDs []int64 `json:"proposal_ids"`
	CreatedBy   string  `json:"created_by,omitempty"`
}

// GeneratePRRequest is the POST /batches/:id/generate-pr payload.
type GeneratePRRequest struct {
	PRTitle     string  `json:"pr_title"`
	PRBody      string  `json:"pr_body"`
	ProposalIDs []int64 `json:"proposal_ids,omitempty"`
	SubmittedBy string  `json:"submitted_by,omitempty"`
}
