package config

// Config is the umbrella configuration object that encapsulates
// all registries, defaults, and configuration state.
// This is the primary object returned by Initialize() and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Pipeline and batching behaviour
	Pipeline *PipelineConfig

	// Cron triggers
	Scheduling *SchedulingConfig

	// Outbound networking preferences
	Network *NetworkConfig

	// Review API listener
	Server *ServerConfig

	// Background cleanup sweeps
	Retention *RetentionConfig

	// Embedding backend
	Embedding *EmbeddingConfig

	// Component registries
	TenantRegistry      *TenantRegistry
	LLMProviderRegistry *LLMProviderRegistry
	ModelTierRegistry   *ModelTierRegistry
}

// Initialize is defined in loader.go

// Stats contains statistics about loaded configuration
type Stats struct {
	Tenants      int
	LLMProviders int
	ModelTiers   int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.TenantRegistry != nil {
		s.Tenants = c.TenantRegistry.Len()
	}
	if c.LLMProviderRegistry != nil {
		s.LLMProviders = c.LLMProviderRegistry.Len()
	}
	if c.ModelTierRegistry != nil {
		s.ModelTiers = c.ModelTierRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetTenant retrieves a tenant configuration by id.
// This is a convenience method that wraps TenantRegistry.Get().
func (c *Config) GetTenant(tenantID string) (*TenantConfig, error) {
	return c.TenantRegistry.Get(tenantID)
}

// GetLLMProvider retrieves an LLM provider configuration by name.
// This is a convenience method that wraps LLMProviderRegistry.Get().
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// GetModelTier retrieves a tier configuration.
// This is a convenience method that wraps ModelTierRegistry.Get().
func (c *Config) GetModelTier(tier ModelTier) (*ModelTierConfig, error) {
	return c.ModelTierRegistry.Get(tier)
}

// AllTenantIDs returns a sorted list of all configured tenant ids.
func (c *Config) AllTenantIDs() []string {
	return c.TenantRegistry.TenantIDs()
}
