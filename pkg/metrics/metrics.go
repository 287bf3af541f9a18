// Package metrics defines the process-wide Prometheus collectors and
// the /metrics handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesImported counts normalised messages newly stored, per
	// stream.
	MessagesImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpythia",
		Name:      "messages_imported_total",
		Help:      "Messages newly stored by stream adapters.",
	}, []string{"stream_id"})

	// StreamRunFailures counts failed adapter runs, per stream.
	StreamRunFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpythia",
		Name:      "stream_run_failures_total",
		Help:      "Adapter runs that ended in an error.",
	}, []string{"stream_id"})

	// BatchesProcessed counts batch pipeline runs, partitioned by
	// outcome (committed, empty, failed, deferred).
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpythia",
		Name:      "batches_processed_total",
		Help:      "Batch pipeline runs by outcome.",
	}, []string{"stream_id", "outcome"})

	// BatchDuration observes wall time of one batch pipeline run.
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docpythia",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one batch pipeline run.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stream_id"})

	// ProposalsCreated counts stored proposals by status.
	ProposalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpythia",
		Name:      "proposals_created_total",
		Help:      "Doc-change proposals written by the pipeline.",
	}, []string{"tenant_id", "status"})

	// LLMCalls counts gateway calls by purpose and cache outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpythia",
		Name:      "llm_calls_total",
		Help:      "LLM gateway calls by purpose and cache outcome.",
	}, []string{"purpose", "cache"})
)

// ObserveBatch records one finished batch run.
func ObserveBatch(streamID, outcome string, started time.Time) {
	BatchesProcessed.WithLabelValues(streamID, outcome).Inc()
	BatchDuration.WithLabelValues(streamID).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
