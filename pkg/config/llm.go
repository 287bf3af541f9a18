package config

import (
	"fmt"
	"sync"
	"time"
)

// LLMProviderConfig defines one reachable model provider endpoint.
type LLMProviderConfig struct {
	// Provider protocol (required)
	Type LLMProviderType `yaml:"type" validate:"required"`

	// Environment variable name for the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Optional custom endpoint/base URL (OpenRouter, Ollama, proxies)
	BaseURL string `yaml:"base_url,omitempty"`
}

// ModelTierConfig binds a tier to a concrete provider model.
type ModelTierConfig struct {
	// Provider name referencing llm_providers (required)
	Provider string `yaml:"provider" validate:"required"`

	// Model id passed to the provider (required)
	Model string `yaml:"model" validate:"required"`

	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	// Per-call deadline; defaults to 60s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// EmbeddingConfig selects and sizes the embedding backend.
type EmbeddingConfig struct {
	Provider   EmbeddingProviderType `yaml:"provider"`
	Endpoint   string                `yaml:"endpoint,omitempty"`
	Model      string                `yaml:"model,omitempty"`
	APIKeyEnv  string                `yaml:"api_key_env,omitempty"`
	Dimensions int                   `yaml:"dimensions,omitempty"`
	Timeout    time.Duration         `yaml:"timeout,omitempty"`
}

// DefaultEmbeddingConfig returns the built-in embedding defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Provider:   EmbeddingProviderOllama,
		Endpoint:   "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		Timeout:    20 * time.Second,
	}
}

// LLMProviderRegistry stores LLM provider configurations in memory with thread-safe access
type LLMProviderRegistry struct {
	providers map[string]*LLMProviderConfig
	mu        sync.RWMutex
}

// NewLLMProviderRegistry creates a new LLM provider registry
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &LLMProviderRegistry{
		providers: copied,
	}
}

// Get retrieves an LLM provider configuration by name (thread-safe)
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, name)
	}
	return provider, nil
}

// GetAll returns all LLM provider configurations (thread-safe, returns copy)
func (r *LLMProviderRegistry) GetAll() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*LLMProviderConfig, len(r.providers))
	for k, v := range r.providers {
		result[k] = v
	}
	return result
}

// Has checks if an LLM provider exists in the registry (thread-safe)
func (r *LLMProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[name]
	return exists
}

// Len returns the number of LLM providers in the registry (thread-safe)
func (r *LLMProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// ModelTierRegistry resolves model tiers to concrete model configs.
type ModelTierRegistry struct {
	tiers map[ModelTier]*ModelTierConfig
	mu    sync.RWMutex
}

// NewModelTierRegistry creates a new model tier registry
func NewModelTierRegistry(tiers map[ModelTier]*ModelTierConfig) *ModelTierRegistry {
	copied := make(map[ModelTier]*ModelTierConfig, len(tiers))
	for k, v := range tiers {
		copied[k] = v
	}
	return &ModelTierRegistry{tiers: copied}
}

// Get retrieves a tier configuration (thread-safe)
func (r *ModelTierRegistry) Get(tier ModelTier) (*ModelTierConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.tiers[tier]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrModelTierNotFound, tier)
	}
	return cfg, nil
}

// GetAll returns all tier configurations (thread-safe, returns copy)
func (r *ModelTierRegistry) GetAll() map[ModelTier]*ModelTierConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[ModelTier]*ModelTierConfig, len(r.tiers))
	for k, v := range r.tiers {
		result[k] = v
	}
	return result
}

// Has checks if a tier is configured (thread-safe)
func (r *ModelTierRegistry) Has(tier ModelTier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tiers[tier]
	return exists
}

// Len returns the number of configured tiers (thread-safe)
func (r *ModelTierRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tiers)
}
