// Package cleanup enforces data retention: expired LLM cache entries,
// old pipeline run logs, stale doc-index snapshots, and failed
// messages past their retention window.
package cleanup

import (
	"context"
	"time"

	"log/slog"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
)

// Service runs the periodic retention sweep. All operations are
// idempotent deletes bounded by a cutoff, so overlapping runs are
// harmless.
type Service struct {
	config   *config.RetentionConfig
	llmCache *services.LLMCacheService
	runLogs  *services.RunLogService
	docIndex *services.DocIndexCacheService
	messages *services.MessageService
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention sweeper.
func NewService(
	cfg *config.RetentionConfig,
	llmCache *services.LLMCacheService,
	runLogs *services.RunLogService,
	docIndex *services.DocIndexCacheService,
	messages *services.MessageService,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:   cfg,
		llmCache: llmCache,
		runLogs:  runLogs,
		docIndex: docIndex,
		messages: messages,
		logger:   logger.With("component", "cleanup"),
	}
}

// Start launches the background sweep loop. The first sweep runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"llm_cache_retention_days", s.config.LLMCacheRetentionDays,
		"run_log_retention_days", s.config.RunLogRetentionDays,
		"failed_message_retention_days", s.config.FailedMessageRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes one full sweep. Individual failures are logged and
// do not stop the other sweeps.
func (s *Service) RunAll(ctx context.Context) {
	now := time.Now().UTC()
	s.purgeLLMCache(ctx, now)
	s.purgeRunLogs(ctx, now)
	s.purgeDocIndexCache(ctx, now)
	s.purgeFailedMessages(ctx, now)
}

func (s *Service) purgeLLMCache(ctx context.Context, now time.Time) {
	if s.config.LLMCacheRetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.config.LLMCacheRetentionDays)
	count, err := s.llmCache.Purge(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: LLM cache purge failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: purged LLM cache entries", "count", count)
	}
}

func (s *Service) purgeRunLogs(ctx context.Context, now time.Time) {
	if s.config.RunLogRetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.config.RunLogRetentionDays)
	count, err := s.runLogs.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: run log purge failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: purged pipeline run logs", "count", count)
	}
}

func (s *Service) purgeDocIndexCache(ctx context.Context, now time.Time) {
	// Doc-index snapshots go stale with their commit; anything older
	// than the run-log horizon is unreferenced.
	days := s.config.RunLogRetentionDays
	if days <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -days)
	count, err := s.docIndex.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: doc-index cache purge failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: purged doc-index snapshots", "count", count)
	}
}

func (s *Service) purgeFailedMessages(ctx context.Context, now time.Time) {
	if s.config.FailedMessageRetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.config.FailedMessageRetentionDays)
	count, err := s.messages.PurgeFailedOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: failed-message purge failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: purged failed messages", "count", count)
	}
}
