package models

import (
	"encoding/json"
	"time"
)

// PipelineRunLog records one pipeline step execution for a batch.
type PipelineRunLog struct {
	ID            int64           `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	BatchID       string          `db:"batch_id" json:"batch_id"`
	StepName      string          `db:"step_name" json:"step_name"`
	Status        RunStatus       `db:"status" json:"status"`
	StartedAt     time.Time       `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	InputSummary  json.RawMessage `db:"input_summary_json" json:"input_summary,omitempty"`
	OutputSummary json.RawMessage `db:"output_summary_json" json:"output_summary,omitempty"`
	Error         *string         `db:"error" json:"error,omitempty"`
}
