package models

import (
	"encoding/json"
	"time"
)

// UnifiedMessage is the normalised form every stream adapter produces.
// Rows are immutable once written except for processing_status,
// failure_count, last_error and embedding.
type UnifiedMessage struct {
	ID               int64            `db:"id" json:"id"`
	TenantID         string           `db:"tenant_id" json:"tenant_id"`
	StreamID         string           `db:"stream_id" json:"stream_id"`
	MessageID        string           `db:"message_id" json:"message_id"`
	Timestamp        time.Time        `db:"timestamp" json:"timestamp"`
	Author           string           `db:"author" json:"author"`
	Content          string           `db:"content" json:"content"`
	Channel          *string          `db:"channel" json:"channel,omitempty"`
	ConversationID   *string          `db:"conversation_id" json:"conversation_id,omitempty"`
	RawData          json.RawMessage  `db:"raw_data" json:"raw_data,omitempty"`
	Metadata         json.RawMessage  `db:"metadata_json" json:"metadata,omitempty"`
	Embedding        json.RawMessage  `db:"embedding" json:"-"`
	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	FailureCount     int              `db:"failure_count" json:"failure_count"`
	LastError        *string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// MessageMetadata is the decoded shape of UnifiedMessage.Metadata.
// Source-specific fields beyond these stay in the raw JSON.
type MessageMetadata struct {
	ChatID           string `json:"chat_id,omitempty"`
	Topic            string `json:"topic,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
	ThreadID         string `json:"thread_id,omitempty"`
}

// DecodedMetadata parses the metadata JSON; a nil or empty payload
// yields the zero value.
func (m *UnifiedMessage) DecodedMetadata() MessageMetadata {
	var md MessageMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &md)
	}
	return md
}

// NormalizedMessage is an adapter's wire-format output before storage.
// Timestamp is ISO-8601 on the wire.
type NormalizedMessage struct {
	StreamID  string          `json:"stream_id"`
	MessageID string          `json:"message_id"`
	Timestamp time.Time       `json:"timestamp"`
	Author    string          `json:"author"`
	Content   string          `json:"content"`
	Channel   string          `json:"channel,omitempty"`
	Metadata  MessageMetadata `json:"metadata"`
	RawData   json.RawMessage `json:"-"`
}

// MessageFilters narrows message listings.
type MessageFilters struct {
	TenantID string
	StreamID string
	Status   ProcessingStatus
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}
