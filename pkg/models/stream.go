package models

import (
	"encoding/json"
	"time"
)

// StreamConfig is one registered message source. ConfigJSON is
// adapter-specific and validated at registration time.
type StreamConfig struct {
	ID          int64           `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	StreamID    string          `db:"stream_id" json:"stream_id"`
	AdapterType AdapterType     `db:"adapter_type" json:"adapter_type"`
	ConfigJSON  json.RawMessage `db:"config_json" json:"config"`
	Enabled     bool            `db:"enabled" json:"enabled"`
	Schedule    *string         `db:"schedule" json:"schedule,omitempty"`
	DisabledAt  *time.Time      `db:"disabled_at" json:"disabled_at,omitempty"`
	DisabledFor *string         `db:"disabled_reason" json:"disabled_reason,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CreateStreamRequest registers a new stream source.
type CreateStreamRequest struct {
	TenantID    string          `json:"tenant_id"`
	StreamID    string          `json:"stream_id"`
	AdapterType AdapterType     `json:"adapter_type"`
	ConfigJSON  json.RawMessage `json:"config"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Schedule    string          `json:"schedule,omitempty"`
}

// StreamStatus is the manager's runtime view of one adapter, surfaced
// by the streams endpoint.
type StreamStatus struct {
	StreamID            string      `json:"stream_id"`
	TenantID            string      `json:"tenant_id"`
	AdapterType         AdapterType `json:"adapter_type"`
	Enabled             bool        `json:"enabled"`
	Schedule            string      `json:"schedule,omitempty"`
	LastRunAt           *time.Time  `json:"last_run_at,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	MessagesImported    int64       `json:"messages_imported"`
	PendingBacklog      int64       `json:"pending_backlog"`
}
