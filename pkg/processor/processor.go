// Package processor drives per-stream batch processing: it selects
// 24-hour windows behind each stream's processing watermark, runs the
// staged pipeline over them, and commits every result atomically with
// the watermark advance.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/docindex"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/embedding"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/metrics"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/pipeline"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/ruleset"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
)

// watermarkBootstrapLookback seeds the processing watermark when a
// stream has no messages yet.
const watermarkBootstrapLookback = 7 * 24 * time.Hour

// IndexProvider resolves the current documentation index for one
// tenant. *docindex.Service satisfies this.
type IndexProvider interface {
	Index(ctx context.Context) (*docindex.DocIndex, string, error)
}

// Deps bundles the processor's collaborators.
type Deps struct {
	DB              *database.Client
	Streams         *services.StreamService
	Messages        *services.MessageService
	Watermarks      *services.WatermarkService
	Classifications *services.ClassificationService
	RagContexts     *services.RagContextService
	Proposals       *services.ProposalService
	Rulesets        *services.RulesetService
	RunLogs         pipeline.RunLogger

	Gateway     pipeline.Gateway
	Embedding   embedding.Engine
	VectorStore *vectorstore.Store

	Config *config.Config
	Logger *slog.Logger
}

// Processor owns one tick of batch processing across all streams.
// Safe to trigger concurrently: each stream is single-flight both
// in-process and, via an advisory transaction lock, across processes.
type Processor struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]bool
	indexes map[string]IndexProvider
}

// New creates a batch processor.
func New(deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		deps:    deps,
		logger:  logger.With("component", "batch_processor"),
		running: make(map[string]bool),
		indexes: make(map[string]IndexProvider),
	}
}

// RegisterIndexProvider binds a tenant to its documentation index
// source. Streams of tenants without a provider run without an index.
func (p *Processor) RegisterIndexProvider(tenantID string, provider IndexProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexes[tenantID] = provider
}

// Tick visits every stream with pending work. Stream failures are
// logged and do not stop the tick; the first error is returned for
// observability.
func (p *Processor) Tick(ctx context.Context) error {
	cfg := p.pipelineConfig()
	cutoff := time.Now().UTC().Add(-cfg.BatchWindow)

	streamIDs, err := p.deps.Messages.NextPendingStreams(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list pending streams: %w", err)
	}

	var firstErr error
	for _, streamID := range streamIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ProcessStream(ctx, streamID); err != nil {
			p.logger.Error("Stream batch failed", "stream_id", streamID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ProcessStream runs at most one batch window for a stream. A stream
// already being processed yields immediately.
func (p *Processor) ProcessStream(ctx context.Context, streamID string) error {
	if !p.acquire(streamID) {
		return nil
	}
	defer p.release(streamID)

	cfg := p.pipelineConfig()
	now := time.Now().UTC()

	streamCfg, err := p.deps.Streams.GetStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("load stream config: %w", err)
	}
	tenant, err := p.deps.Config.GetTenant(streamCfg.TenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant for stream %s: %w", streamID, err)
	}

	wm, err := p.watermarkFor(ctx, streamID, now)
	if err != nil {
		return err
	}

	batchEnd := wm.Add(cfg.BatchWindow)
	if batchEnd.After(now) {
		return nil
	}

	contextMsgs, err := p.deps.Messages.MessagesInWindow(ctx, streamID, wm.Add(-cfg.ContextWindow), wm, 0)
	if err != nil {
		return fmt.Errorf("load context window: %w", err)
	}
	windowMsgs, err := p.deps.Messages.MessagesInWindow(ctx, streamID, wm, batchEnd, 0)
	if err != nil {
		return fmt.Errorf("load batch window: %w", err)
	}

	batchMsgs := pendingOnly(windowMsgs)
	if len(batchMsgs) == 0 {
		// Empty window: advance by exactly one batch window, no LLM calls.
		metrics.BatchesProcessed.WithLabelValues(streamID, "empty").Inc()
		return p.deps.DB.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := acquireStreamLock(ctx, tx, streamID); err != nil {
				return err
			}
			return p.deps.Watermarks.AdvanceProcessingWatermarkTx(ctx, tx, streamID, batchEnd, "")
		})
	}

	advance := true
	if len(batchMsgs) > cfg.MaxBatchSize {
		// Excess defers to the next tick; the watermark stays put so the
		// window is revisited.
		batchMsgs = batchMsgs[:cfg.MaxBatchSize]
		advance = false
	}

	batchID := BatchID(streamID, wm, batchEnd)
	log := p.logger.With("stream_id", streamID, "batch_id", batchID)
	log.Info("Processing batch",
		"window_start", wm, "window_end", batchEnd,
		"messages", len(batchMsgs), "context_messages", len(contextMsgs))

	st := &pipeline.State{
		TenantID:        streamCfg.TenantID,
		Tenant:          tenant,
		StreamID:        streamID,
		BatchID:         batchID,
		WindowStart:     wm,
		WindowEnd:       batchEnd,
		ContextMessages: contextMsgs,
		Messages:        batchMsgs,
		Pipeline:        cfg,
	}

	if err := p.prepareState(ctx, st, streamCfg.TenantID); err != nil {
		return err
	}

	orchestrator, err := p.buildOrchestrator(tenant, cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	started := time.Now()
	allIDs := messageIDs(batchMsgs)
	if err := orchestrator.Run(ctx, st); err != nil {
		metrics.ObserveBatch(streamID, "failed", started)
		if recErr := p.recordBatchFailure(ctx, allIDs, err, cfg.MaxFailures); recErr != nil {
			log.Error("Failed to record batch failure", "error", recErr)
		}
		return err
	}

	if err := p.commit(ctx, st, allIDs, batchEnd, advance); err != nil {
		metrics.ObserveBatch(streamID, "failed", started)
		return err
	}
	metrics.ObserveBatch(streamID, "committed", started)
	metrics.ProposalsCreated.WithLabelValues(st.TenantID, string(models.ProposalStatusPending)).
		Add(float64(len(st.Proposals)))
	metrics.ProposalsCreated.WithLabelValues(st.TenantID, string(models.ProposalStatusIgnored)).
		Add(float64(len(st.RejectedProposals)))

	log.Info("Batch committed",
		"classifications", len(st.Classifications),
		"proposals", len(st.Proposals),
		"rejected", len(st.RejectedProposals),
		"watermark_advanced", advance)
	return nil
}

// prepareState loads the tenant ruleset and documentation index into
// the pipeline state.
func (p *Processor) prepareState(ctx context.Context, st *pipeline.State, tenantID string) error {
	rs, err := p.deps.Rulesets.GetRuleset(ctx, tenantID)
	switch {
	case errors.Is(err, services.ErrNotFound):
		// No ruleset is a no-op, not an error.
	case err != nil:
		return fmt.Errorf("load ruleset: %w", err)
	default:
		st.Ruleset = ruleset.Parse(rs.ContentMarkdown)
	}

	p.mu.Lock()
	provider := p.indexes[tenantID]
	p.mu.Unlock()
	if provider != nil {
		idx, compact, err := provider.Index(ctx)
		if err != nil {
			return fmt.Errorf("resolve doc index: %w", err)
		}
		st.DocIndex = idx
		st.CompactIndex = compact
	}
	return nil
}

func (p *Processor) buildOrchestrator(tenant *config.TenantConfig, cfg *config.PipelineConfig) (*pipeline.Orchestrator, error) {
	engine := ruleset.NewEngine(p.deps.Gateway, cfg.RulesetReviewOrder, p.logger)
	steps, err := pipeline.DefaultSteps(pipeline.StepsConfig{
		Gateway:       p.deps.Gateway,
		Embedding:     p.deps.Embedding,
		VectorStore:   p.deps.VectorStore,
		RulesetEngine: engine,
		Proposals:     p.deps.Proposals,
		Redaction:     tenant.Redaction,
	})
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(steps, p.deps.RunLogs, p.logger), nil
}

// commit writes every batch result and the watermark advance in one
// transaction, guarded by the stream's advisory lock. Nothing is
// visible until the transaction commits.
func (p *Processor) commit(ctx context.Context, st *pipeline.State, allIDs []int64, batchEnd time.Time, advance bool) error {
	return p.deps.DB.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := acquireStreamLock(ctx, tx, st.StreamID); err != nil {
			return err
		}

		if len(st.Classifications) > 0 {
			if err := p.deps.Classifications.CreateClassificationsTx(ctx, tx, st.Classifications); err != nil {
				return err
			}
		}
		for _, conv := range st.Conversations {
			if err := p.deps.Messages.SetConversationIDTx(ctx, tx, conv.ID, conv.MessageIDs()); err != nil {
				return err
			}
		}
		for _, rag := range st.RagContexts {
			if err := p.deps.RagContexts.CreateRagContextTx(ctx, tx, rag); err != nil {
				return err
			}
		}
		if len(st.Proposals) > 0 {
			if err := p.deps.Proposals.CreateProposalsTx(ctx, tx, st.Proposals); err != nil {
				return err
			}
		}
		if len(st.RejectedProposals) > 0 {
			if err := p.deps.Proposals.CreateProposalsTx(ctx, tx, st.RejectedProposals); err != nil {
				return err
			}
		}
		if err := p.deps.Messages.SetStatusTx(ctx, tx, allIDs, models.ProcessingStatusCompleted); err != nil {
			return err
		}
		if advance {
			return p.deps.Watermarks.AdvanceProcessingWatermarkTx(ctx, tx, st.StreamID, batchEnd, st.BatchID)
		}
		return nil
	})
}

// recordBatchFailure increments failure counts in a transaction of its
// own; the batch transaction never opened.
func (p *Processor) recordBatchFailure(ctx context.Context, ids []int64, batchErr error, maxFailures int) error {
	return p.deps.DB.WithTx(ctx, func(tx *sqlx.Tx) error {
		return p.deps.Messages.RecordFailuresTx(ctx, tx, ids, batchErr.Error(), maxFailures)
	})
}

// watermarkFor resolves the stream's processing watermark, initialising
// it from the earliest available message (or a bounded lookback) when
// the stream is new.
func (p *Processor) watermarkFor(ctx context.Context, streamID string, now time.Time) (time.Time, error) {
	wm, err := p.deps.Watermarks.GetProcessingWatermark(ctx, streamID)
	switch {
	case err == nil:
		return wm.WatermarkTime.UTC(), nil
	case !errors.Is(err, services.ErrNotFound):
		return time.Time{}, fmt.Errorf("load processing watermark: %w", err)
	}

	start := now.Add(-watermarkBootstrapLookback)
	earliest, err := p.deps.Messages.EarliestMessageTime(ctx, streamID)
	if err != nil {
		return time.Time{}, fmt.Errorf("find earliest message: %w", err)
	}
	if earliest != nil {
		start = earliest.UTC()
	}

	created, err := p.deps.Watermarks.InitProcessingWatermark(ctx, streamID, start)
	if err != nil {
		return time.Time{}, fmt.Errorf("init processing watermark: %w", err)
	}
	return created.WatermarkTime.UTC(), nil
}

func (p *Processor) pipelineConfig() *config.PipelineConfig {
	if p.deps.Config != nil && p.deps.Config.Pipeline != nil {
		return p.deps.Config.Pipeline
	}
	return config.DefaultPipelineConfig()
}

func (p *Processor) acquire(streamID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[streamID] {
		return false
	}
	p.running[streamID] = true
	return true
}

func (p *Processor) release(streamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, streamID)
}

// ErrStreamLocked reports that another writer holds the stream's
// advisory lock; the batch retries next tick.
var ErrStreamLocked = errors.New("stream is locked by another writer")

// acquireStreamLock takes the per-stream advisory transaction lock.
// The lock releases automatically at commit or rollback.
func acquireStreamLock(ctx context.Context, tx *sqlx.Tx, streamID string) error {
	var acquired bool
	if err := tx.GetContext(ctx, &acquired,
		`SELECT pg_try_advisory_xact_lock($1)`, streamLockKey(streamID)); err != nil {
		return fmt.Errorf("acquire stream lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("stream %s: %w", streamID, ErrStreamLocked)
	}
	return nil
}

func streamLockKey(streamID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("stream:" + streamID))
	return int64(h.Sum64())
}

// BatchID derives the deterministic batch identifier from the stream
// and window bounds, so a rolled-back batch reruns under the same id.
func BatchID(streamID string, windowStart, windowEnd time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d", streamID, windowStart.UTC().Unix(), windowEnd.UTC().Unix())
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func pendingOnly(msgs []*models.UnifiedMessage) []*models.UnifiedMessage {
	out := make([]*models.UnifiedMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ProcessingStatus == models.ProcessingStatusPending {
			out = append(out, m)
		}
	}
	return out
}

func messageIDs(msgs []*models.UnifiedMessage) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
