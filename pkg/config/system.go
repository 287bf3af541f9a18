package config

import "time"

// SchedulingConfig controls the cron-driven triggers.
type SchedulingConfig struct {
	// StreamSchedulingEnabled registers per-stream pollers with the scheduler.
	StreamSchedulingEnabled bool `yaml:"stream_scheduling_enabled"`

	// BatchTickCron fires the batch processor tick.
	BatchTickCron string `yaml:"batch_tick_cron"`
}

// DefaultSchedulingConfig returns the built-in scheduling defaults.
func DefaultSchedulingConfig() *SchedulingConfig {
	return &SchedulingConfig{
		StreamSchedulingEnabled: true,
		BatchTickCron:           "*/30 * * * *",
	}
}

// NetworkConfig holds outbound networking preferences.
type NetworkConfig struct {
	// PreferIPv4 dials IPv4 addresses first in dual-stack environments.
	// Several chat and model providers publish AAAA records that are
	// unroutable from common cluster setups.
	PreferIPv4 bool `yaml:"prefer_ipv4"`
}

// ServerConfig holds the review API listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// AdminTokenEnv names the env var carrying the bearer token
	// required by state-mutating endpoints.
	AdminTokenEnv string `yaml:"admin_token_env"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:    ":8080",
		AdminTokenEnv: "DOCPYTHIA_ADMIN_TOKEN",
	}
}

// RetentionConfig controls the background cleanup sweeps.
type RetentionConfig struct {
	// LLMCacheRetentionDays prunes cache entries older than this.
	LLMCacheRetentionDays int `yaml:"llm_cache_retention_days"`

	// RunLogRetentionDays prunes pipeline run logs older than this.
	RunLogRetentionDays int `yaml:"run_log_retention_days"`

	// FailedMessageRetentionDays prunes FAILED messages older than this.
	FailedMessageRetentionDays int `yaml:"failed_message_retention_days"`

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		LLMCacheRetentionDays:      90,
		RunLogRetentionDays:        30,
		FailedMessageRetentionDays: 30,
		CleanupInterval:            12 * time.Hour,
	}
}

// DocIndexCacheTTL is the in-memory TTL in front of the persistent
// doc-index cache.
const DocIndexCacheTTL = 10 * time.Minute
