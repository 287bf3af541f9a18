package config

import "time"

// PipelineConfig controls batching, conversation grouping, and
// generation thresholds. These values shape every processor tick.
type PipelineConfig struct {
	// BatchWindow is the width of one processing window per stream.
	BatchWindow time.Duration `yaml:"batch_window"`

	// ContextWindow is how far before the watermark context messages
	// are collected. They inform the classifier but are not classified.
	ContextWindow time.Duration `yaml:"context_window"`

	// MaxBatchSize caps messages per batch; excess is deferred to the
	// next tick without advancing the watermark.
	MaxBatchSize int `yaml:"max_batch_size"`

	// ConversationTimeWindow buckets messages of one channel/topic
	// into conversations.
	ConversationTimeWindow time.Duration `yaml:"conversation_time_window"`

	// MinConversationGap splits a conversation when consecutive
	// messages are further apart than this.
	MinConversationGap time.Duration `yaml:"min_conversation_gap"`

	// MaxConversationSize hard-caps a conversation; oversized runs
	// split exactly at the cap.
	MaxConversationSize int `yaml:"max_conversation_size"`

	// RagTopK is how many documentation chunks each conversation retrieves.
	RagTopK int `yaml:"rag_top_k"`

	// MinConfidence drops generated proposals below this confidence.
	MinConfidence float64 `yaml:"min_confidence"`

	// MaxFailures marks a message FAILED after this many batch-level
	// failures; failed messages are skipped by subsequent batches.
	MaxFailures int `yaml:"max_failures"`

	// RulesetReviewOrder sequences REVIEW_MODIFICATIONS vs REJECTION_RULES.
	RulesetReviewOrder ReviewOrder `yaml:"ruleset_review_order"`

	// BackpressureThreshold pauses a stream's adapters while its
	// pending backlog exceeds this count.
	BackpressureThreshold int64 `yaml:"backpressure_threshold"`

	// ReplyIndentDepthCap bounds reply-chain indentation in prompts.
	ReplyIndentDepthCap int `yaml:"reply_indent_depth_cap"`

	// AdapterFetchTimeout is the per-run deadline for adapter network calls.
	AdapterFetchTimeout time.Duration `yaml:"adapter_fetch_timeout"`

	// StreamFailureLimit disables a stream after this many consecutive
	// failed adapter runs.
	StreamFailureLimit int `yaml:"stream_failure_limit"`
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		BatchWindow:            24 * time.Hour,
		ContextWindow:          24 * time.Hour,
		MaxBatchSize:           500,
		ConversationTimeWindow: 15 * time.Minute,
		MinConversationGap:     5 * time.Minute,
		MaxConversationSize:    20,
		RagTopK:                5,
		MinConfidence:          0.7,
		MaxFailures:            5,
		RulesetReviewOrder:     ReviewOrderModifyFirst,
		BackpressureThreshold:  10000,
		ReplyIndentDepthCap:    5,
		AdapterFetchTimeout:    30 * time.Second,
		StreamFailureLimit:     5,
	}
}
