package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const cacheColumns = `hash, purpose, prompt, response, model, tokens_used, timestamp, message_id`

// LLMCacheService manages the content-addressed LLM response cache.
// It satisfies the gateway's cache store contract.
type LLMCacheService struct {
	client *database.Client
}

// NewLLMCacheService creates a new LLMCacheService
func NewLLMCacheService(client *database.Client) *LLMCacheService {
	return &LLMCacheService{client: client}
}

// Lookup retrieves a cache entry by hash. A miss is (nil, false, nil).
func (s *LLMCacheService) Lookup(ctx context.Context, hash string) (*models.LLMCacheEntry, bool, error) {
	if hash == "" {
		return nil, false, NewValidationError("hash", "required")
	}

	var entry models.LLMCacheEntry
	err := s.client.GetContext(ctx, &entry,
		`SELECT `+cacheColumns+` FROM llm_cache_entries WHERE hash = $1`, hash)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to look up cache entry: %w", err)
	}

	return &entry, true, nil
}

// Store upserts a cache entry by hash. Concurrent writers race
// harmlessly; last write wins.
func (s *LLMCacheService) Store(ctx context.Context, entry *models.LLMCacheEntry) error {
	if entry.Hash == "" {
		return NewValidationError("hash", "required")
	}
	if entry.Model == "" {
		return NewValidationError("model", "required")
	}
	if !entry.Purpose.IsValid() {
		return NewValidationError("purpose", fmt.Sprintf("unknown purpose '%s'", entry.Purpose))
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err := s.client.ExecContext(ctx,
		`INSERT INTO llm_cache_entries (hash, purpose, prompt, response, model, tokens_used, timestamp, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (hash) DO UPDATE SET
			response = EXCLUDED.response,
			tokens_used = EXCLUDED.tokens_used,
			timestamp = EXCLUDED.timestamp,
			message_id = EXCLUDED.message_id`,
		entry.Hash, entry.Purpose, entry.Prompt, entry.Response, entry.Model,
		entry.TokensUsed, timestamp, entry.MessageID)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// SearchWithRelated full-text-matches prompts and responses, then
// widens each hit to every cache entry sharing its message id. The
// result groups entries by message so a reviewer sees the complete
// call history behind a match; entries cached without a message form
// their own group.
func (s *LLMCacheService) SearchWithRelated(ctx context.Context, query string, limit int) ([]*models.CacheSearchGroup, error) {
	if query == "" {
		return nil, NewValidationError("query", "required")
	}
	limit = normalizeLimit(limit)

	var matches []*models.LLMCacheEntry
	err := s.client.SelectContext(ctx, &matches,
		`SELECT `+cacheColumns+` FROM llm_cache_entries
		WHERE to_tsvector('english', prompt || ' ' || response) @@ plainto_tsquery('english', $1)
		ORDER BY timestamp DESC LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search cache: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	var unlinked []*models.LLMCacheEntry
	idSet := make(map[int64]bool)
	for _, m := range matches {
		if m.MessageID == nil {
			unlinked = append(unlinked, m)
			continue
		}
		idSet[*m.MessageID] = true
	}

	groups := make([]*models.CacheSearchGroup, 0, len(idSet)+1)
	if len(idSet) > 0 {
		messageIDs := make([]int64, 0, len(idSet))
		for id := range idSet {
			messageIDs = append(messageIDs, id)
		}
		sort.Slice(messageIDs, func(i, j int) bool { return messageIDs[i] < messageIDs[j] })

		inQuery, args, err := sqlx.In(
			`SELECT `+cacheColumns+` FROM llm_cache_entries
			WHERE message_id IN (?) ORDER BY message_id, timestamp ASC`, messageIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to build related query: %w", err)
		}
		var related []*models.LLMCacheEntry
		if err := s.client.SelectContext(ctx, &related, s.client.Rebind(inQuery), args...); err != nil {
			return nil, fmt.Errorf("failed to get related cache entries: %w", err)
		}

		byMessage := make(map[int64][]*models.LLMCacheEntry, len(idSet))
		for _, entry := range related {
			byMessage[*entry.MessageID] = append(byMessage[*entry.MessageID], entry)
		}
		for _, id := range messageIDs {
			id := id
			groups = append(groups, &models.CacheSearchGroup{MessageID: &id, Entries: byMessage[id]})
		}
	}
	if len(unlinked) > 0 {
		groups = append(groups, &models.CacheSearchGroup{Entries: unlinked})
	}

	return groups, nil
}

// Purge removes cache entries older than the cutoff and returns how
// many were deleted.
func (s *LLMCacheService) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.client.ExecContext(ctx,
		`DELETE FROM llm_cache_entries WHERE timestamp < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
