package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// ErrSkipStep is returned by a step that has nothing to do; the
// orchestrator logs it as skipped and continues.
var ErrSkipStep = errors.New("step skipped")

// Step is one named stage of the batch pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// RunLogger persists per-step run log rows. *services.RunLogService
// satisfies this. Run logs commit outside the batch transaction so a
// rolled-back batch keeps its timings and errors visible.
type RunLogger interface {
	StartStep(ctx context.Context, tenantID, batchID, stepName string, inputSummary json.RawMessage) (*models.PipelineRunLog, error)
	FinishStep(ctx context.Context, id int64, status models.RunStatus, outputSummary json.RawMessage, stepErr string) error
}

// Orchestrator executes an ordered, named list of steps for a batch.
type Orchestrator struct {
	steps  []Step
	runLog RunLogger
	logger *slog.Logger
}

// NewOrchestrator builds an orchestrator over the given step list.
// runLog may be nil, which disables run logging (tests).
func NewOrchestrator(steps []Step, runLog RunLogger, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		steps:  steps,
		runLog: runLog,
		logger: logger.With("component", "pipeline"),
	}
}

// StepNames returns the configured step order.
func (o *Orchestrator) StepNames() []string {
	names := make([]string, len(o.steps))
	for i, s := range o.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes every step in order. A step returning ErrSkipStep is
// logged as skipped; any other error aborts the run and is returned to
// the processor, which rolls the batch back.
func (o *Orchestrator) Run(ctx context.Context, st *State) error {
	log := o.logger.With("batch_id", st.BatchID, "stream_id", st.StreamID)

	for _, step := range o.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline cancelled before step %s: %w", step.Name(), err)
		}

		logID := o.startLog(ctx, st, step.Name())
		started := time.Now()

		err := step.Run(ctx, st)
		elapsed := time.Since(started)

		switch {
		case errors.Is(err, ErrSkipStep):
			log.Debug("Pipeline step skipped", "step", step.Name())
			o.finishLog(ctx, logID, models.RunStatusSkipped, st.Summary(step.Name()), "")
		case err != nil:
			log.Error("Pipeline step failed", "step", step.Name(), "duration", elapsed, "error", err)
			o.finishLog(ctx, logID, models.RunStatusFailed, st.Summary(step.Name()), err.Error())
			return fmt.Errorf("step %s: %w", step.Name(), err)
		default:
			log.Info("Pipeline step completed", "step", step.Name(), "duration", elapsed)
			o.finishLog(ctx, logID, models.RunStatusCompleted, st.Summary(step.Name()), "")
		}
	}
	return nil
}

func (o *Orchestrator) startLog(ctx context.Context, st *State, stepName string) int64 {
	if o.runLog == nil {
		return 0
	}
	input, _ := json.Marshal(map[string]any{
		"messages":      len(st.Messages),
		"conversations": len(st.Conversations),
		"proposals":     len(st.Proposals),
	})
	entry, err := o.runLog.StartStep(ctx, st.TenantID, st.BatchID, stepName, input)
	if err != nil {
		o.logger.Warn("Failed to open run log entry", "step", stepName, "error", err)
		return 0
	}
	return entry.ID
}

func (o *Orchestrator) finishLog(ctx context.Context, id int64, status models.RunStatus, summary json.RawMessage, stepErr string) {
	if o.runLog == nil || id == 0 {
		return
	}
	if err := o.runLog.FinishStep(ctx, id, status, summary, stepErr); err != nil {
		o.logger.Warn("Failed to close run log entry", "error", err)
	}
}
