package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// Anthropic requires an explicit completion cap on every request.
const anthropicDefaultMaxTokens = 4096

// anthropicProvider adapts the Anthropic Messages API. Retries are
// handled by the gateway, so SDK-level retries are disabled.
type anthropicProvider struct {
	name   string
	client sdk.Client
}

func newAnthropicProvider(name string, cfg *config.LLMProviderConfig, httpClient *http.Client) (*anthropicProvider, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: anthropic provider %q requires %s to be set", config.ErrMissingRequiredField, name, cfg.APIKeyEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &anthropicProvider{
		name:   name,
		client: sdk.NewClient(opts...),
	}, nil
}

func (p *anthropicProvider) Name() string {
	return p.name
}

func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case RoleSystem:
			// Anthropic keeps system turns out of the conversation.
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(msgs) == 0 {
		return nil, NewFatalError(errors.New("anthropic: at least one user message is required"))
	}
	params.Messages = msgs

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &Completion{
		Content:      text.String(),
		Model:        string(msg.Model),
		Usage:        usage,
		FinishReason: string(msg.StopReason),
	}, nil
}

func classifyAnthropicError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return classifyHTTPError(apierr.StatusCode, []byte(apierr.Error()))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(err)
	}
	return NewTransientError(fmt.Errorf("anthropic request: %w", err))
}
