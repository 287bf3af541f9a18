package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// Chat roles understood by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn passed alongside the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports token consumption for a single completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is the provider-agnostic completion input.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Completion is a raw provider response before JSON extraction.
type Completion struct {
	Content      string
	Model        string
	Usage        TokenUsage
	FinishReason string
}

// Provider executes completion requests against one configured endpoint.
// Implementations classify their failures with NewTransientError and
// NewFatalError so the gateway can decide whether to retry.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// newProvider builds the concrete implementation for a configured provider.
func newProvider(name string, cfg *config.LLMProviderConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Type {
	case config.LLMProviderTypeOpenAI:
		return newOpenAIProvider(name, cfg, httpClient), nil
	case config.LLMProviderTypeAnthropic:
		return newAnthropicProvider(name, cfg, httpClient)
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider type %q", config.ErrInvalidValue, cfg.Type)
	}
}

// classifyHTTPError maps a provider HTTP status to transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	err := fmt.Errorf("llm api error (status %d): %s", statusCode, msg)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode == http.StatusRequestTimeout:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return NewFatalError(err)
	default:
		// Remaining 4xx means the request itself is wrong.
		return NewFatalError(err)
	}
}
