// Package streams hosts the stream adapters and the manager that owns
// their lifecycle. An adapter pulls (or receives) messages from one
// source, normalises them, and hands them to the message store;
// progress is tracked with per-resource import watermarks.
package streams

import (
	"context"
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
)

// Env bundles the collaborators every adapter needs. The manager hands
// one Env to each factory.
type Env struct {
	Messages   *services.MessageService
	Watermarks *services.WatermarkService
	Warnings   *services.SystemWarningsService
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Adapter is the contract every stream source implements. Instances
// are single-stream: the manager creates one per StreamConfig row.
type Adapter interface {
	// Type identifies the adapter kind.
	Type() models.AdapterType

	// ValidateConfig checks a raw stream config without side effects.
	ValidateConfig(raw json.RawMessage) error

	// Initialize prepares the adapter for its stream. Called once
	// before the first Run.
	Initialize(ctx context.Context, stream *models.StreamConfig) error

	// Run performs one import pass and returns the number of messages
	// newly stored. Pull-based adapters fetch here; push-based adapters
	// may use Run to drain their long-poll source.
	Run(ctx context.Context) (int, error)

	// Shutdown releases adapter resources.
	Shutdown(ctx context.Context) error
}

// Factory builds an adapter instance for one stream.
type Factory func(env *Env) Adapter

// WebhookReceiver is implemented by adapters that accept pushed
// payloads in addition to (or instead of) polling.
type WebhookReceiver interface {
	// ReceiveWebhook ingests one pushed payload and returns the number
	// of messages stored.
	ReceiveWebhook(ctx context.Context, payload []byte) (int, error)
}
