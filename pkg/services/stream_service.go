package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const streamColumns = `id, tenant_id, stream_id, adapter_type, config_json, enabled,
	schedule, disabled_at, disabled_reason, created_at, updated_at`

// StreamService manages registered stream sources
type StreamService struct {
	client *database.Client
}

// NewStreamService creates a new StreamService
func NewStreamService(client *database.Client) *StreamService {
	return &StreamService{client: client}
}

// CreateStream registers a new stream source
func (s *StreamService) CreateStream(ctx context.Context, req models.CreateStreamRequest) (*models.StreamConfig, error) {
	// Validate input
	if req.TenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}
	if req.StreamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}
	if !req.AdapterType.IsValid() {
		return nil, NewValidationError("adapter_type", fmt.Sprintf("unknown adapter type '%s'", req.AdapterType))
	}
	if len(req.ConfigJSON) == 0 {
		return nil, NewValidationError("config", "required")
	}
	if !json.Valid(req.ConfigJSON) {
		return nil, NewValidationError("config", "must be valid JSON")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	var schedule *string
	if req.Schedule != "" {
		schedule = &req.Schedule
	}

	var stream models.StreamConfig
	err := s.client.GetContext(ctx, &stream,
		`INSERT INTO stream_configs (tenant_id, stream_id, adapter_type, config_json, enabled, schedule)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+streamColumns,
		req.TenantID, req.StreamID, req.AdapterType, req.ConfigJSON, enabled, schedule)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("stream '%s' for tenant '%s': %w", req.StreamID, req.TenantID, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &stream, nil
}

// GetStream retrieves a stream by its stream_id
func (s *StreamService) GetStream(ctx context.Context, streamID string) (*models.StreamConfig, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}

	var stream models.StreamConfig
	err := s.client.GetContext(ctx, &stream,
		`SELECT `+streamColumns+` FROM stream_configs WHERE stream_id = $1`, streamID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("stream '%s': %w", streamID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	return &stream, nil
}

// ListStreams retrieves all streams, optionally only enabled ones
func (s *StreamService) ListStreams(ctx context.Context, enabledOnly bool) ([]*models.StreamConfig, error) {
	query := `SELECT ` + streamColumns + ` FROM stream_configs`
	if enabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY tenant_id, stream_id`

	var streams []*models.StreamConfig
	if err := s.client.SelectContext(ctx, &streams, query); err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	return streams, nil
}

// UpdateStreamConfig replaces the adapter configuration and schedule of a stream
func (s *StreamService) UpdateStreamConfig(ctx context.Context, streamID string, configJSON json.RawMessage, schedule *string) (*models.StreamConfig, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}
	if len(configJSON) == 0 {
		return nil, NewValidationError("config", "required")
	}
	if !json.Valid(configJSON) {
		return nil, NewValidationError("config", "must be valid JSON")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stream models.StreamConfig
	err := s.client.GetContext(ctx, &stream,
		`UPDATE stream_configs
		SET config_json = $2, schedule = $3, updated_at = now()
		WHERE stream_id = $1
		RETURNING `+streamColumns,
		streamID, configJSON, schedule)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("stream '%s': %w", streamID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update stream config: %w", err)
	}

	return &stream, nil
}

// SetStreamEnabled enables or disables a stream. Enabling clears any
// recorded failure reason.
func (s *StreamService) SetStreamEnabled(ctx context.Context, streamID string, enabled bool) error {
	if streamID == "" {
		return NewValidationError("stream_id", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var query string
	if enabled {
		query = `UPDATE stream_configs
			SET enabled = true, disabled_at = NULL, disabled_reason = NULL, updated_at = now()
			WHERE stream_id = $1`
	} else {
		query = `UPDATE stream_configs
			SET enabled = false, disabled_at = now(), updated_at = now()
			WHERE stream_id = $1`
	}

	res, err := s.client.ExecContext(ctx, query, streamID)
	if err != nil {
		return fmt.Errorf("failed to set stream enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stream '%s': %w", streamID, ErrNotFound)
	}

	return nil
}

// DisableStream disables a stream and records why. Used by the stream
// manager after repeated adapter failures.
func (s *StreamService) DisableStream(ctx context.Context, streamID, reason string) error {
	if streamID == "" {
		return NewValidationError("stream_id", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.client.ExecContext(ctx,
		`UPDATE stream_configs
		SET enabled = false, disabled_at = now(), disabled_reason = $2, updated_at = now()
		WHERE stream_id = $1`,
		streamID, reason)
	if err != nil {
		return fmt.Errorf("failed to disable stream: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stream '%s': %w", streamID, ErrNotFound)
	}

	return nil
}
