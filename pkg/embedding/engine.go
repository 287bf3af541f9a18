// Package embedding generates vector embeddings for semantic search
// over documentation. Two backends are supported: a local Ollama server
// and any OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Name identifies the backend and model.
	Name() string
}

// NewEngine builds the configured embedding backend with a default
// HTTP client.
func NewEngine(cfg *config.EmbeddingConfig) (Engine, error) {
	return NewEngineWithClient(cfg, nil)
}

// NewEngineWithClient builds the configured embedding backend on the
// given HTTP client. A nil client gets a plain one with the config
// timeout; callers that need dial control (IPv4 preference) pass
// their own.
func NewEngineWithClient(cfg *config.EmbeddingConfig, client *http.Client) (Engine, error) {
	if cfg == nil {
		cfg = config.DefaultEmbeddingConfig()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	switch cfg.Provider {
	case config.EmbeddingProviderOllama, "":
		return newOllamaEngine(cfg, client), nil
	case config.EmbeddingProviderOpenAI:
		return newOpenAIEngine(cfg, client), nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", config.ErrInvalidValue, cfg.Provider)
	}
}
