// Package llm is the single call site for all model interactions. The
// gateway resolves a model tier to a configured provider, caches
// responses by prompt hash, validates JSON output against a response
// schema, and retries transient failures with exponential backoff.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/metrics"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// DefaultCallTimeout bounds a single provider attempt when the tier has
// no explicit timeout.
const DefaultCallTimeout = 60 * time.Second

// Circuit breaker settings per model id. The breaker opens after
// breakerFailureThreshold consecutive non-fatal failures and probes
// again after breakerCooldown.
const (
	breakerFailureThreshold = 5
	breakerCooldown         = 30 * time.Second
)

// CacheStore persists gateway responses keyed by prompt hash.
// *services.LLMCacheService satisfies this.
type CacheStore interface {
	Lookup(ctx context.Context, hash string) (*models.LLMCacheEntry, bool, error)
	Store(ctx context.Context, entry *models.LLMCacheEntry) error
}

// CallInput describes one gateway call.
type CallInput struct {
	// Purpose labels the cache entry; defaults to PurposeGeneral.
	Purpose models.CachePurpose

	// Tier selects the configured model (FAST, STRONG, STRONG_ALT).
	Tier config.ModelTier

	System  string
	User    string
	History []Message

	// ResponseSchema, when set, requests JSON output and validates the
	// parsed completion against it.
	ResponseSchema json.RawMessage

	// MessageID links the cache entry to the message that triggered the
	// call, enabling per-message call lookups.
	MessageID *int64
}

// CallResult is the outcome of a gateway call.
type CallResult struct {
	// Text is the full completion content.
	Text string

	// JSON holds the extracted, schema-validated document when a
	// response schema was requested.
	JSON json.RawMessage

	Model      string
	Usage      TokenUsage
	TokensUsed int
	CacheHit   bool
}

// Gateway routes completion calls to configured providers. Safe for
// concurrent use.
type Gateway struct {
	tiers      *config.ModelTierRegistry
	providers  map[string]Provider
	cache      CacheStore
	retry      RetryConfig
	logger     *slog.Logger
	httpClient *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithCache enables response caching.
func WithCache(store CacheStore) Option {
	return func(g *Gateway) error {
		g.cache = store
		return nil
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(g *Gateway) error {
		g.retry = cfg
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithHTTPClient sets the HTTP client handed to providers.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) error {
		g.httpClient = client
		return nil
	}
}

// NewGateway builds provider implementations for every configured
// provider and wires them to the tier registry.
func NewGateway(providers *config.LLMProviderRegistry, tiers *config.ModelTierRegistry, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		tiers:     tiers,
		providers: make(map[string]Provider),
		retry:     DefaultRetryConfig(),
		logger:    slog.Default(),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	for name, cfg := range providers.GetAll() {
		impl, err := newProvider(name, cfg, g.httpClient)
		if err != nil {
			return nil, fmt.Errorf("build llm provider %q: %w", name, err)
		}
		g.providers[name] = impl
	}

	for tier, cfg := range tiers.GetAll() {
		if _, ok := g.providers[cfg.Provider]; !ok {
			return nil, fmt.Errorf("%w: tier %s references unknown provider %q", config.ErrInvalidReference, tier, cfg.Provider)
		}
	}

	g.logger = g.logger.With("component", "llm_gateway")
	return g, nil
}

// Call executes one completion. Responses are served from cache when an
// identical call has succeeded before; otherwise the provider is called
// with retry, and the result is cached. A cancelled context aborts the
// in-flight attempt and never writes the cache.
func (g *Gateway) Call(ctx context.Context, in CallInput) (*CallResult, error) {
	if strings.TrimSpace(in.User) == "" {
		return nil, errors.New("user prompt is required")
	}
	if in.Purpose == "" {
		in.Purpose = models.PurposeGeneral
	}
	if !in.Purpose.IsValid() {
		return nil, fmt.Errorf("invalid cache purpose %q", in.Purpose)
	}

	tier, err := g.tiers.Get(in.Tier)
	if err != nil {
		return nil, err
	}
	provider, ok := g.providers[tier.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrLLMProviderNotFound, tier.Provider)
	}

	var schema *ResponseSchema
	if len(in.ResponseSchema) > 0 {
		schema, err = CompileSchema(in.ResponseSchema)
		if err != nil {
			return nil, err
		}
	}

	prompt := canonicalPrompt(in.System, in.User, in.History, schema)
	key := cacheKey(tier.Model, in.Purpose, prompt)

	if res := g.cachedResult(ctx, key, schema); res != nil {
		metrics.LLMCalls.WithLabelValues(string(in.Purpose), "hit").Inc()
		return res, nil
	}
	metrics.LLMCalls.WithLabelValues(string(in.Purpose), "miss").Inc()

	req := CompletionRequest{
		Model:       tier.Model,
		System:      in.System,
		Messages:    append(append([]Message{}, in.History...), Message{Role: RoleUser, Content: in.User}),
		Temperature: tier.Temperature,
		MaxTokens:   tier.MaxTokens,
	}
	timeout := tier.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	var lastErr error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		res, err := g.attempt(ctx, provider, tier.Model, timeout, req, schema)
		if err == nil {
			g.storeCache(ctx, key, in, tier.Model, prompt, res)
			return res, nil
		}
		lastErr = err

		if IsFatal(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < g.retry.MaxAttempts-1 {
			backoff := g.retry.Backoff(attempt, IsTransient(err))
			g.logger.Warn("LLM call failed, backing off",
				"model", tier.Model,
				"purpose", in.Purpose,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("%w: model %s failed %d attempts: %v", ErrExhausted, tier.Model, g.retry.MaxAttempts, lastErr)
}

// attempt runs one provider call through the model's circuit breaker
// and applies JSON extraction and schema validation to the completion.
func (g *Gateway) attempt(ctx context.Context, provider Provider, model string, timeout time.Duration, req CompletionRequest, schema *ResponseSchema) (*CallResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := g.breaker(model).Execute(func() (any, error) {
		return provider.Complete(callCtx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewTransientError(fmt.Errorf("circuit open for model %s: %w", model, err))
		}
		return nil, err
	}

	completion := out.(*Completion)
	res := &CallResult{
		Text:       completion.Content,
		Model:      completion.Model,
		Usage:      completion.Usage,
		TokensUsed: completion.Usage.TotalTokens,
	}
	if res.Model == "" {
		res.Model = model
	}

	if schema == nil {
		if strings.TrimSpace(completion.Content) == "" {
			return nil, NewTransientError(errors.New("empty completion"))
		}
		return res, nil
	}

	raw := ExtractJSON(completion.Content)
	if raw == "" {
		return nil, NewTransientError(errors.New("no JSON object in completion"))
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, NewTransientError(fmt.Errorf("malformed JSON in completion: %w", err))
	}
	// A well-formed document that fails validation will fail again on
	// retry with the same prompt.
	if err := schema.Validate(decoded); err != nil {
		return nil, NewFatalError(fmt.Errorf("completion violates response schema: %w", err))
	}

	res.JSON = json.RawMessage(raw)
	return res, nil
}

func (g *Gateway) breaker(model string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[model]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		// Fatal errors point at configuration, not endpoint health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsFatal(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("LLM circuit breaker state change",
				"model", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	g.breakers[model] = cb
	return cb
}

// cachedResult returns a hit from the cache store, or nil on miss or
// lookup failure (the provider call proceeds either way).
func (g *Gateway) cachedResult(ctx context.Context, key string, schema *ResponseSchema) *CallResult {
	if g.cache == nil {
		return nil
	}

	entry, found, err := g.cache.Lookup(ctx, key)
	if err != nil {
		g.logger.Warn("LLM cache lookup failed", "hash", key, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	res := &CallResult{
		Text:       entry.Response,
		Model:      entry.Model,
		TokensUsed: entry.TokensUsed,
		CacheHit:   true,
	}
	if schema != nil {
		raw := ExtractJSON(entry.Response)
		if raw == "" {
			return nil
		}
		res.JSON = json.RawMessage(raw)
	}
	return res
}

// storeCache records a successful call. Failures are logged, never
// surfaced; a cancelled context skips the write entirely.
func (g *Gateway) storeCache(ctx context.Context, key string, in CallInput, model, prompt string, res *CallResult) {
	if g.cache == nil || ctx.Err() != nil {
		return
	}

	entry := &models.LLMCacheEntry{
		Hash:       key,
		Purpose:    in.Purpose,
		Prompt:     prompt,
		Response:   res.Text,
		Model:      model,
		TokensUsed: res.TokensUsed,
		Timestamp:  time.Now().UTC(),
		MessageID:  in.MessageID,
	}
	if err := g.cache.Store(ctx, entry); err != nil {
		g.logger.Warn("failed to record LLM cache entry",
			"hash", key,
			"purpose", in.Purpose,
			"error", err)
	}
}

// canonicalPrompt builds the deterministic prompt bytes hashed into the
// cache key: system, newline, user, the JSON-encoded history, and the
// schema hash when a response schema is requested.
func canonicalPrompt(system, user string, history []Message, schema *ResponseSchema) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n")
	b.WriteString(user)
	if len(history) > 0 {
		encoded, _ := json.Marshal(history)
		b.Write(encoded)
	}
	if schema != nil {
		b.WriteString(schema.Hash())
	}
	return b.String()
}

func cacheKey(model string, purpose models.CachePurpose, prompt string) string {
	h := sha256.New()
	io.WriteString(h, model)
	io.WriteString(h, string(purpose))
	io.WriteString(h, prompt)
	return hex.EncodeToString(h.Sum(nil))
}
