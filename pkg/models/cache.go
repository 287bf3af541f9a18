package models

import (
	"encoding/json"
	"time"
)

// LLMCacheEntry is one cached model response, addressed by
// sha256(model || purpose || canonical prompt).
type LLMCacheEntry struct {
	Hash       string       `db:"hash" json:"hash"`
	Purpose    CachePurpose `db:"purpose" json:"purpose"`
	Prompt     string       `db:"prompt" json:"prompt"`
	Response   string       `db:"response" json:"response"`
	Model      string       `db:"model" json:"model"`
	TokensUsed int          `db:"tokens_used" json:"tokens_used"`
	Timestamp  time.Time    `db:"timestamp" json:"timestamp"`
	MessageID  *int64       `db:"message_id" json:"message_id,omitempty"`
}

// CacheSearchGroup is one message's worth of cache entries in a
// search-with-related result. A nil MessageID groups entries that
// matched the query but were cached without a message association.
type CacheSearchGroup struct {
	MessageID *int64           `json:"message_id,omitempty"`
	Entries   []*LLMCacheEntry `json:"entries"`
}

// DocIndexCache is one generated documentation index, keyed by
// (commit_hash, config_hash).
type DocIndexCache struct {
	CommitHash       string          `db:"commit_hash" json:"commit_hash"`
	ConfigHash       string          `db:"config_hash" json:"config_hash"`
	IndexData        json.RawMessage `db:"index_data_json" json:"index_data"`
	CompactIndexText string          `db:"compact_index_text" json:"compact_index_text"`
	GeneratedAt      time.Time       `db:"generated_at" json:"generated_at"`
}

// DocEmbedding persists one documentation chunk vector, addressed by
// the logical key (tenant_id, source, key).
type DocEmbedding struct {
	ID        int64           `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"tenant_id"`
	Source    string          `db:"source" json:"source"`
	Key       string          `db:"key" json:"key"`
	Content   string          `db:"content" json:"content"`
	Embedding json.RawMessage `db:"embedding" json:"-"`
	Metadata  json.RawMessage `db:"metadata_json" json:"metadata,omitempty"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Vector decodes the stored embedding.
func (d *DocEmbedding) Vector() []float32 {
	var v []float32
	if len(d.Embedding) > 0 {
		_ = json.Unmarshal(d.Embedding, &v)
	}
	return v
}
