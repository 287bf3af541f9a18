package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// PipelineYAMLConfig represents the complete docpythia.yaml file structure
type PipelineYAMLConfig struct {
	Tenants    map[string]*TenantConfig `yaml:"tenants"`
	Pipeline   *PipelineConfig          `yaml:"pipeline"`
	Scheduling *SchedulingConfig        `yaml:"scheduling"`
	Network    *NetworkConfig           `yaml:"network"`
	Server     *ServerConfig            `yaml:"server"`
	Retention  *RetentionConfig         `yaml:"retention"`
	Embedding  *EmbeddingConfig         `yaml:"embedding"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file structure
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]*LLMProviderConfig  `yaml:"llm_providers"`
	ModelTiers   map[ModelTier]*ModelTierConfig `yaml:"model_tiers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined values over built-in defaults
//  5. Build in-memory registries
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	// 1. Load configuration files
	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Validate all configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"tenants", stats.Tenants,
		"llm_providers", stats.LLMProviders,
		"model_tiers", stats.ModelTiers)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load docpythia.yaml (tenants, pipeline, scheduling, network, server, retention, embedding)
	pipelineConfig, err := loader.loadPipelineYAML()
	if err != nil {
		return nil, NewLoadError("docpythia.yaml", err)
	}

	// 2. Load llm-providers.yaml
	providers, tiers, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Merge user sections over built-in defaults; non-zero user
	// values override, unset values keep their defaults.
	pipeCfg := DefaultPipelineConfig()
	if pipelineConfig.Pipeline != nil {
		if err := mergo.Merge(pipeCfg, pipelineConfig.Pipeline, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge pipeline config: %w", err)
		}
	}

	schedCfg := DefaultSchedulingConfig()
	if pipelineConfig.Scheduling != nil {
		if err := mergo.Merge(schedCfg, pipelineConfig.Scheduling, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge scheduling config: %w", err)
		}
		// Booleans cannot be distinguished from their zero value by
		// mergo; take the user's setting verbatim.
		schedCfg.StreamSchedulingEnabled = pipelineConfig.Scheduling.StreamSchedulingEnabled
	}

	serverCfg := DefaultServerConfig()
	if pipelineConfig.Server != nil {
		if err := mergo.Merge(serverCfg, pipelineConfig.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if pipelineConfig.Retention != nil {
		if err := mergo.Merge(retentionCfg, pipelineConfig.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	embeddingCfg := DefaultEmbeddingConfig()
	if pipelineConfig.Embedding != nil {
		if err := mergo.Merge(embeddingCfg, pipelineConfig.Embedding, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge embedding config: %w", err)
		}
	}

	networkCfg := &NetworkConfig{}
	if pipelineConfig.Network != nil {
		networkCfg = pipelineConfig.Network
	}

	// 4. Apply per-tenant docs defaults
	for _, tenant := range pipelineConfig.Tenants {
		if tenant.Docs == nil {
			tenant.Docs = &DocsConfig{}
		}
		if tenant.Docs.Filter == nil {
			tenant.Docs.Filter = DefaultDocFilterConfig()
		} else {
			defaults := DefaultDocFilterConfig()
			if err := mergo.Merge(tenant.Docs.Filter, defaults); err != nil {
				return nil, fmt.Errorf("failed to merge doc filter defaults: %w", err)
			}
		}
	}

	// 5. Build registries
	tenantRegistry := NewTenantRegistry(pipelineConfig.Tenants)
	llmProviderRegistry := NewLLMProviderRegistry(providers)
	modelTierRegistry := NewModelTierRegistry(tiers)

	return &Config{
		configDir:           configDir,
		Pipeline:            pipeCfg,
		Scheduling:          schedCfg,
		Network:             networkCfg,
		Server:              serverCfg,
		Retention:           retentionCfg,
		Embedding:           embeddingCfg,
		TenantRegistry:      tenantRegistry,
		LLMProviderRegistry: llmProviderRegistry,
		ModelTierRegistry:   modelTierRegistry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadPipelineYAML() (*PipelineYAMLConfig, error) {
	var config PipelineYAMLConfig

	// Initialize maps to avoid nil maps
	config.Tenants = make(map[string]*TenantConfig)

	if err := l.loadYAML("docpythia.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]*LLMProviderConfig, map[ModelTier]*ModelTierConfig, error) {
	var config LLMProvidersYAMLConfig

	// Initialize maps to avoid nil maps
	config.LLMProviders = make(map[string]*LLMProviderConfig)
	config.ModelTiers = make(map[ModelTier]*ModelTierConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		return nil, nil, err
	}

	return config.LLMProviders, config.ModelTiers, nil
}
