package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const runLogColumns = `id, tenant_id, batch_id, step_name, status, started_at, finished_at,
	input_summary_json, output_summary_json, error`

// RunLogService records pipeline step executions. Run logs are written
// outside the batch transaction on purpose: a rolled-back batch still
// leaves its step timings and errors visible.
type RunLogService struct {
	client *database.Client
}

// NewRunLogService creates a new RunLogService
func NewRunLogService(client *database.Client) *RunLogService {
	return &RunLogService{client: client}
}

// StartStep opens a run log entry for one pipeline step
func (s *RunLogService) StartStep(ctx context.Context, tenantID, batchID, stepName string, inputSummary json.RawMessage) (*models.PipelineRunLog, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}
	if stepName == "" {
		return nil, NewValidationError("step_name", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var entry models.PipelineRunLog
	err := s.client.GetContext(ctx, &entry,
		`INSERT INTO pipeline_run_logs (tenant_id, batch_id, step_name, status, input_summary_json)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+runLogColumns,
		tenantID, batchID, stepName, models.RunStatusRunning, emptyJSONObject(inputSummary))
	if err != nil {
		return nil, fmt.Errorf("failed to start run log: %w", err)
	}

	return &entry, nil
}

// FinishStep closes a run log entry with its final status
func (s *RunLogService) FinishStep(ctx context.Context, id int64, status models.RunStatus, outputSummary json.RawMessage, stepErr string) error {
	if status == models.RunStatusRunning {
		return NewValidationError("status", "cannot finish a step as running")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errText *string
	if stepErr != "" {
		errText = &stepErr
	}

	res, err := s.client.ExecContext(ctx,
		`UPDATE pipeline_run_logs
		SET status = $2, finished_at = now(), output_summary_json = $3, error = $4
		WHERE id = $1`,
		id, status, emptyJSONObject(outputSummary), errText)
	if err != nil {
		return fmt.Errorf("failed to finish run log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run log %d: %w", id, ErrNotFound)
	}

	return nil
}

// ListRunLogs retrieves the step log of one batch in execution order
func (s *RunLogService) ListRunLogs(ctx context.Context, batchID string) ([]*models.PipelineRunLog, error) {
	if batchID == "" {
		return nil, NewValidationError("batch_id", "required")
	}

	var logs []*models.PipelineRunLog
	err := s.client.SelectContext(ctx, &logs,
		`SELECT `+runLogColumns+` FROM pipeline_run_logs
		WHERE batch_id = $1 ORDER BY started_at ASC, id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}

	return logs, nil
}

// PurgeOlderThan removes run logs started before the cutoff
func (s *RunLogService) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.client.ExecContext(ctx,
		`DELETE FROM pipeline_run_logs WHERE started_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge run logs: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// emptyJSONObject substitutes an empty object for absent summaries so
// the column stays queryable JSON.
func emptyJSONObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
