package docindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
)

// Service resolves the current documentation index for one tenant,
// checking the in-memory TTL layer, then the doc_index_cache table,
// then rebuilding from a fresh snapshot.
type Service struct {
	source   Source
	gen      *Generator
	store    *services.DocIndexCacheService
	cache    *memoryCache
	confHash string
	logger   *slog.Logger
}

// NewService creates a doc index service. store may be nil, which
// disables persistence (used by tests and one-shot tooling).
func NewService(source Source, store *services.DocIndexCacheService, filter *config.DocFilterConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		gen:      NewGenerator(filter),
		store:    store,
		cache:    newMemoryCache(config.DocIndexCacheTTL),
		confHash: ConfigHash(filter),
		logger:   logger.With("component", "docindex"),
	}
}

// Index returns the documentation index and its compact text form.
func (s *Service) Index(ctx context.Context) (*DocIndex, string, error) {
	if idx, compact, ok := s.cache.Get(); ok {
		return idx, compact, nil
	}

	commit, files, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot documentation: %w", err)
	}

	if s.store != nil {
		row, err := s.store.Get(ctx, commit, s.confHash)
		if err == nil {
			var idx DocIndex
			uerr := json.Unmarshal(row.IndexData, &idx)
			if uerr == nil {
				s.cache.Set(&idx, row.CompactIndexText)
				return &idx, row.CompactIndexText, nil
			}
			s.logger.Warn("Stored doc index is unreadable, rebuilding", "commit", commit, "error", uerr)
		} else if !errors.Is(err, services.ErrNotFound) {
			s.logger.Warn("Doc index cache lookup failed", "error", err)
		}
	}

	idx := s.gen.Build(commit, files)
	compact := s.gen.CompactText(idx)
	s.persist(ctx, idx, compact)
	s.cache.Set(idx, compact)

	return idx, compact, nil
}

// SyncResult carries everything one re-index produced.
type SyncResult struct {
	Index       *DocIndex
	CompactText string
	Files       []PageFile
	Invalidated int64
}

// Sync forces a rebuild from a fresh snapshot and drops cached indexes
// of every other commit. Files are returned so the caller can re-embed
// them into the vector store.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	s.cache.Clear()

	commit, files, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot documentation: %w", err)
	}

	idx := s.gen.Build(commit, files)
	compact := s.gen.CompactText(idx)
	s.persist(ctx, idx, compact)

	var invalidated int64
	if s.store != nil {
		invalidated, err = s.store.InvalidateExcept(ctx, commit)
		if err != nil {
			s.logger.Warn("Doc index invalidation failed", "commit", commit, "error", err)
		} else if invalidated > 0 {
			s.logger.Info("Dropped stale doc indexes", "commit", commit, "dropped", invalidated)
		}
	}

	s.cache.Set(idx, compact)
	return &SyncResult{Index: idx, CompactText: compact, Files: files, Invalidated: invalidated}, nil
}

// persist stores the generated index. Failures are logged, not
// returned: a missing cache row only costs a rebuild.
func (s *Service) persist(ctx context.Context, idx *DocIndex, compact string) {
	if s.store == nil {
		return
	}

	raw, err := json.Marshal(idx)
	if err != nil {
		s.logger.Warn("Failed to encode doc index", "commit", idx.Commit, "error", err)
		return
	}

	err = s.store.Put(ctx, &models.DocIndexCache{
		CommitHash:       idx.Commit,
		ConfigHash:       s.confHash,
		IndexData:        raw,
		CompactIndexText: compact,
		GeneratedAt:      idx.GeneratedAt,
	})
	if err != nil {
		s.logger.Warn("Failed to persist doc index", "commit", idx.Commit, "error", err)
	}
}
