package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: providers → tiers → tenants → pipeline → scheduling → embedding
	// This ensures dependencies are validated before dependents

	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateModelTiers(); err != nil {
		return fmt.Errorf("model tier validation failed: %w", err)
	}

	if err := v.validateTenants(); err != nil {
		return fmt.Errorf("tenant validation failed: %w", err)
	}

	if err := v.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}

	if err := v.validateScheduling(); err != nil {
		return fmt.Errorf("scheduling validation failed: %w", err)
	}

	if err := v.validateEmbedding(); err != nil {
		return fmt.Errorf("embedding validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type",
				fmt.Errorf("invalid provider type: %s", provider.Type))
		}
		// Anthropic has no self-hosted deployment mode; a key is mandatory
		if provider.Type == LLMProviderTypeAnthropic && provider.APIKeyEnv == "" {
			return NewValidationError("llm_provider", name, "api_key_env",
				fmt.Errorf("anthropic providers require api_key_env"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateModelTiers() error {
	// Every tier must be bound; the pipeline calls all three
	for _, tier := range []ModelTier{TierFast, TierStrong, TierStrongAlt} {
		if !v.cfg.ModelTierRegistry.Has(tier) {
			return NewValidationError("model_tier", string(tier), "",
				fmt.Errorf("tier is not configured"))
		}
	}

	for tier, tc := range v.cfg.ModelTierRegistry.GetAll() {
		if !tier.IsValid() {
			return NewValidationError("model_tier", string(tier), "",
				fmt.Errorf("unknown tier name"))
		}
		if tc.Provider == "" {
			return NewValidationError("model_tier", string(tier), "provider",
				fmt.Errorf("%w", ErrMissingRequiredField))
		}
		if !v.cfg.LLMProviderRegistry.Has(tc.Provider) {
			return NewValidationError("model_tier", string(tier), "provider",
				fmt.Errorf("LLM provider '%s' not found", tc.Provider))
		}
		if tc.Model == "" {
			return NewValidationError("model_tier", string(tier), "model",
				fmt.Errorf("%w", ErrMissingRequiredField))
		}
		if tc.MaxTokens < 0 {
			return NewValidationError("model_tier", string(tier), "max_tokens",
				fmt.Errorf("must be non-negative"))
		}
		if tc.Temperature != nil && (*tc.Temperature < 0 || *tc.Temperature > 2) {
			return NewValidationError("model_tier", string(tier), "temperature",
				fmt.Errorf("must be in [0, 2]"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateTenants() error {
	for id, tenant := range v.cfg.TenantRegistry.GetAll() {
		if tenant.ProjectName == "" {
			return NewValidationError("tenant", id, "project_name",
				fmt.Errorf("%w", ErrMissingRequiredField))
		}

		if tenant.Docs != nil && tenant.Docs.Source != nil {
			src := tenant.Docs.Source
			if !src.Kind.IsValid() {
				return NewValidationError("tenant", id, "docs.source.kind",
					fmt.Errorf("invalid source kind: %s", src.Kind))
			}
			switch src.Kind {
			case DocSourceLocal:
				if src.Path == "" {
					return NewValidationError("tenant", id, "docs.source.path",
						fmt.Errorf("local sources require a path"))
				}
			case DocSourceGitHub:
				if src.Repo == "" {
					return NewValidationError("tenant", id, "docs.source.repo",
						fmt.Errorf("github sources require owner/name"))
				}
			}
		}

		if f := tenant.docFilter(); f != nil {
			if f.MaxPages < 0 || f.MaxSectionsPerPage < 0 || f.MaxSummaryLength < 0 {
				return NewValidationError("tenant", id, "docs.filter",
					fmt.Errorf("limits must be non-negative"))
			}
		}
	}
	return nil
}

func (v *ConfigValidator) validatePipeline() error {
	p := v.cfg.Pipeline
	if p == nil {
		return NewValidationError("pipeline", "pipeline", "", fmt.Errorf("missing configuration"))
	}
	if p.BatchWindow <= 0 {
		return NewValidationError("pipeline", "pipeline", "batch_window", fmt.Errorf("must be positive"))
	}
	if p.ContextWindow < 0 {
		return NewValidationError("pipeline", "pipeline", "context_window", fmt.Errorf("must be non-negative"))
	}
	if p.MaxBatchSize < 1 {
		return NewValidationError("pipeline", "pipeline", "max_batch_size", fmt.Errorf("must be at least 1"))
	}
	if p.MaxConversationSize < 1 {
		return NewValidationError("pipeline", "pipeline", "max_conversation_size", fmt.Errorf("must be at least 1"))
	}
	if p.RagTopK < 1 {
		return NewValidationError("pipeline", "pipeline", "rag_top_k", fmt.Errorf("must be at least 1"))
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return NewValidationError("pipeline", "pipeline", "min_confidence", fmt.Errorf("must be in [0, 1]"))
	}
	if !p.RulesetReviewOrder.IsValid() {
		return NewValidationError("pipeline", "pipeline", "ruleset_review_order",
			fmt.Errorf("invalid order: %s", p.RulesetReviewOrder))
	}
	return nil
}

func (v *ConfigValidator) validateScheduling() error {
	s := v.cfg.Scheduling
	if s == nil {
		return nil
	}
	if s.BatchTickCron != "" {
		if _, err := cron.ParseStandard(s.BatchTickCron); err != nil {
			return NewValidationError("scheduling", "scheduling", "batch_tick_cron",
				fmt.Errorf("invalid cron expression: %v", err))
		}
	}
	return nil
}

func (v *ConfigValidator) validateEmbedding() error {
	e := v.cfg.Embedding
	if e == nil {
		return nil
	}
	if !e.Provider.IsValid() {
		return NewValidationError("embedding", "embedding", "provider",
			fmt.Errorf("invalid provider: %s", e.Provider))
	}
	if e.Dimensions < 1 {
		return NewValidationError("embedding", "embedding", "dimensions",
			fmt.Errorf("must be at least 1"))
	}
	if e.Provider == EmbeddingProviderOpenAI && e.APIKeyEnv == "" && e.Endpoint == "" {
		return NewValidationError("embedding", "embedding", "api_key_env",
			fmt.Errorf("openai embeddings require api_key_env or a custom endpoint"))
	}
	return nil
}

// docFilter returns the tenant's filter config, tolerating nil chains.
func (t *TenantConfig) docFilter() *DocFilterConfig {
	if t.Docs == nil {
		return nil
	}
	return t.Docs.Filter
}
