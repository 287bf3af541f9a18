package streams

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/metrics"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
)

// maxConcurrentRuns bounds RunAll fan-out.
const maxConcurrentRuns = 4

// ErrUnknownStream reports a stream id with no registered adapter.
var ErrUnknownStream = errors.New("unknown stream")

// ErrNoWebhookSupport reports a webhook posted to a pull-only adapter.
var ErrNoWebhookSupport = errors.New("adapter does not accept webhooks")

// registration pairs one adapter instance with its runtime status.
type registration struct {
	adapter Adapter
	stream  *models.StreamConfig
	status  models.StreamStatus

	mu      sync.Mutex // serializes runs of this stream
	running bool
}

// Manager owns the adapter registry: it loads enabled stream configs,
// builds adapters through registered factories, runs them with
// backpressure and failure accounting, and disables streams that keep
// failing.
type Manager struct {
	env       *Env
	streams   *services.StreamService
	cfg       *config.PipelineConfig
	factories map[models.AdapterType]Factory
	logger    *slog.Logger

	mu       sync.RWMutex
	registry map[string]*registration
}

// NewManager creates an empty manager. Register adapter factories with
// RegisterFactory, then call LoadStreams.
func NewManager(env *Env, streamSvc *services.StreamService, cfg *config.PipelineConfig) *Manager {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		env:       env,
		streams:   streamSvc,
		cfg:       cfg,
		factories: make(map[models.AdapterType]Factory),
		logger:    logger.With("component", "stream_manager"),
		registry:  make(map[string]*registration),
	}
}

// RegisterFactory binds an adapter type to its constructor.
func (m *Manager) RegisterFactory(adapterType models.AdapterType, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[adapterType] = factory
}

// LoadStreams builds and initializes adapters for every enabled stream
// config. Streams whose adapter type has no factory, or that fail
// validation, are logged and skipped; they do not abort startup.
func (m *Manager) LoadStreams(ctx context.Context) error {
	streamCfgs, err := m.streams.ListStreams(ctx, true)
	if err != nil {
		return fmt.Errorf("list enabled streams: %w", err)
	}

	loaded := 0
	for _, sc := range streamCfgs {
		if err := m.RegisterStream(ctx, sc); err != nil {
			m.logger.Error("Skipping stream", "stream_id", sc.StreamID, "error", err)
			m.env.Warnings.AddWarning("stream", "stream failed to register",
				err.Error(), sc.StreamID)
			continue
		}
		loaded++
	}
	m.logger.Info("Streams loaded", "registered", loaded, "configured", len(streamCfgs))
	return nil
}

// RegisterStream builds, validates, and initializes one adapter.
func (m *Manager) RegisterStream(ctx context.Context, sc *models.StreamConfig) error {
	m.mu.RLock()
	factory, ok := m.factories[sc.AdapterType]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no adapter factory for type %q", sc.AdapterType)
	}

	adapter := factory(m.env)
	if err := adapter.ValidateConfig(sc.ConfigJSON); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := adapter.Initialize(ctx, sc); err != nil {
		return fmt.Errorf("initialize adapter: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[sc.StreamID] = &registration{
		adapter: adapter,
		stream:  sc,
		status: models.StreamStatus{
			StreamID:    sc.StreamID,
			TenantID:    sc.TenantID,
			AdapterType: sc.AdapterType,
			Enabled:     sc.Enabled,
			Schedule:    derefString(sc.Schedule),
		},
	}
	return nil
}

// UnregisterStream shuts the adapter down and removes it.
func (m *Manager) UnregisterStream(ctx context.Context, streamID string) error {
	m.mu.Lock()
	reg, ok := m.registry[streamID]
	delete(m.registry, streamID)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownStream
	}
	return reg.adapter.Shutdown(ctx)
}

// RunOnce executes one import pass for a stream. Concurrent calls for
// the same stream coalesce: the second caller returns immediately.
func (m *Manager) RunOnce(ctx context.Context, streamID string) (int, error) {
	m.mu.RLock()
	reg, ok := m.registry[streamID]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
	}

	reg.mu.Lock()
	if reg.running {
		reg.mu.Unlock()
		m.logger.Debug("Stream run already in progress", "stream_id", streamID)
		return 0, nil
	}
	reg.running = true
	reg.mu.Unlock()
	defer func() {
		reg.mu.Lock()
		reg.running = false
		reg.mu.Unlock()
	}()

	// Backpressure: while the processing backlog is above threshold,
	// importing more only grows it.
	pending, err := m.env.Messages.PendingCount(ctx, streamID)
	if err != nil {
		return 0, fmt.Errorf("check backlog: %w", err)
	}
	reg.mu.Lock()
	reg.status.PendingBacklog = pending
	reg.mu.Unlock()
	if m.cfg.BackpressureThreshold > 0 && pending >= m.cfg.BackpressureThreshold {
		m.logger.Warn("Skipping stream run, backlog above threshold",
			"stream_id", streamID, "pending", pending,
			"threshold", m.cfg.BackpressureThreshold)
		return 0, nil
	}

	runCtx := ctx
	if m.cfg.AdapterFetchTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.cfg.AdapterFetchTimeout)
		defer cancel()
	}

	imported, runErr := reg.adapter.Run(runCtx)
	m.recordRun(ctx, reg, imported, runErr)
	if runErr != nil {
		return imported, fmt.Errorf("run stream %s: %w", streamID, runErr)
	}
	return imported, nil
}

// recordRun updates runtime status and disables the stream once its
// consecutive-failure budget is spent.
func (m *Manager) recordRun(ctx context.Context, reg *registration, imported int, runErr error) {
	now := time.Now().UTC()

	reg.mu.Lock()
	reg.status.LastRunAt = &now
	if runErr == nil {
		reg.status.LastError = ""
		reg.status.ConsecutiveFailures = 0
		reg.status.MessagesImported += int64(imported)
		reg.mu.Unlock()
		metrics.MessagesImported.WithLabelValues(reg.status.StreamID).Add(float64(imported))
		return
	}
	reg.status.LastError = runErr.Error()
	reg.status.ConsecutiveFailures++
	failures := reg.status.ConsecutiveFailures
	streamID := reg.status.StreamID
	reg.mu.Unlock()

	metrics.StreamRunFailures.WithLabelValues(streamID).Inc()
	m.logger.Error("Stream run failed",
		"stream_id", streamID, "consecutive_failures", failures, "error", runErr)

	if m.cfg.StreamFailureLimit > 0 && failures >= m.cfg.StreamFailureLimit {
		reason := fmt.Sprintf("disabled after %d consecutive failures: %v", failures, runErr)
		if err := m.streams.DisableStream(ctx, streamID, reason); err != nil {
			m.logger.Error("Failed to disable stream", "stream_id", streamID, "error", err)
			return
		}
		m.env.Warnings.AddWarning("stream", "stream disabled", reason, streamID)
		reg.mu.Lock()
		reg.status.Enabled = false
		reg.mu.Unlock()
	}
}

// RunAll triggers one import pass for every registered stream, bounded
// by maxConcurrentRuns. Individual stream failures are collected, not
// fatal to the rest.
func (m *Manager) RunAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.registry))
	for id := range m.registry {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRuns)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := m.RunOnce(gctx, id); err != nil {
				// Failure accounting already happened in RunOnce; keep
				// the other streams running.
				m.logger.Debug("RunAll stream error", "stream_id", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// HandleWebhook routes a pushed payload to the stream's adapter.
func (m *Manager) HandleWebhook(ctx context.Context, streamID string, payload []byte) (int, error) {
	m.mu.RLock()
	reg, ok := m.registry[streamID]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
	}
	receiver, ok := reg.adapter.(WebhookReceiver)
	if !ok {
		return 0, fmt.Errorf("stream %s: %w", streamID, ErrNoWebhookSupport)
	}

	imported, err := receiver.ReceiveWebhook(ctx, payload)
	m.recordRun(ctx, reg, imported, err)
	if err != nil {
		return imported, fmt.Errorf("webhook for stream %s: %w", streamID, err)
	}
	return imported, nil
}

// Statuses returns a snapshot of every registered stream's runtime
// state, sorted by stream id.
func (m *Manager) Statuses() []models.StreamStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.StreamStatus, 0, len(m.registry))
	for _, reg := range m.registry {
		reg.mu.Lock()
		out = append(out, reg.status)
		reg.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// ScheduledStreams returns registered streams that carry a cron
// schedule, for the caller to hand to the scheduler.
func (m *Manager) ScheduledStreams() []*models.StreamConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.StreamConfig
	for _, reg := range m.registry {
		if reg.stream.Schedule != nil && *reg.stream.Schedule != "" {
			out = append(out, reg.stream)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Shutdown stops every adapter. Errors are logged, not returned: a
// failing Shutdown must not block the others.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	regs := make([]*registration, 0, len(m.registry))
	for _, reg := range m.registry {
		regs = append(regs, reg)
	}
	m.registry = make(map[string]*registration)
	m.mu.Unlock()

	for _, reg := range regs {
		if err := reg.adapter.Shutdown(ctx); err != nil {
			m.logger.Error("Adapter shutdown failed",
				"stream_id", reg.status.StreamID, "error", err)
		}
	}
}
