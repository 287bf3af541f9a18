package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These power the llm-cache text search and message content search.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	// GIN index for cache prompt/response full-text search
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_llm_cache_entries_text_gin
		ON llm_cache_entries USING gin(to_tsvector('english', prompt || ' ' || response))`)
	if err != nil {
		return fmt.Errorf("failed to create llm cache GIN index: %w", err)
	}

	// GIN index for message content full-text search
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_unified_messages_content_gin
		ON unified_messages USING gin(to_tsvector('english', content))`)
	if err != nil {
		return fmt.Errorf("failed to create message content GIN index: %w", err)
	}

	return nil
}
