package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const docIndexColumns = `commit_hash, config_hash, index_data_json, compact_index_text, generated_at`

// DocIndexCacheService persists generated documentation indexes keyed
// by (commit hash, config hash)
type DocIndexCacheService struct {
	client *database.Client
}

// NewDocIndexCacheService creates a new DocIndexCacheService
func NewDocIndexCacheService(client *database.Client) *DocIndexCacheService {
	return &DocIndexCacheService{client: client}
}

// Get retrieves a cached index
func (s *DocIndexCacheService) Get(ctx context.Context, commitHash, configHash string) (*models.DocIndexCache, error) {
	if commitHash == "" {
		return nil, NewValidationError("commit_hash", "required")
	}
	if configHash == "" {
		return nil, NewValidationError("config_hash", "required")
	}

	var entry models.DocIndexCache
	err := s.client.GetContext(ctx, &entry,
		`SELECT `+docIndexColumns+` FROM doc_index_cache
		WHERE commit_hash = $1 AND config_hash = $2`,
		commitHash, configHash)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("doc index for commit '%s': %w", commitHash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get doc index cache: %w", err)
	}

	return &entry, nil
}

// Put upserts a cached index
func (s *DocIndexCacheService) Put(ctx context.Context, entry *models.DocIndexCache) error {
	if entry.CommitHash == "" {
		return NewValidationError("commit_hash", "required")
	}
	if entry.ConfigHash == "" {
		return NewValidationError("config_hash", "required")
	}
	if len(entry.IndexData) == 0 {
		return NewValidationError("index_data", "required")
	}

	generatedAt := entry.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	_, err := s.client.ExecContext(ctx,
		`INSERT INTO doc_index_cache (commit_hash, config_hash, index_data_json, compact_index_text, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (commit_hash, config_hash) DO UPDATE SET
			index_data_json = EXCLUDED.index_data_json,
			compact_index_text = EXCLUDED.compact_index_text,
			generated_at = EXCLUDED.generated_at`,
		entry.CommitHash, entry.ConfigHash, entry.IndexData, entry.CompactIndexText, generatedAt)
	if err != nil {
		return fmt.Errorf("failed to store doc index cache: %w", err)
	}

	return nil
}

// InvalidateExcept drops cached indexes for every commit other than
// the given one. Called when the documentation snapshot moves.
func (s *DocIndexCacheService) InvalidateExcept(ctx context.Context, commitHash string) (int64, error) {
	if commitHash == "" {
		return 0, NewValidationError("commit_hash", "required")
	}

	res, err := s.client.ExecContext(ctx,
		`DELETE FROM doc_index_cache WHERE commit_hash <> $1`, commitHash)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate doc index cache: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// PurgeOlderThan removes cached indexes generated before the cutoff
func (s *DocIndexCacheService) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.client.ExecContext(ctx,
		`DELETE FROM doc_index_cache WHERE generated_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge doc index cache: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
