// Package telegram implements the bot/push chat stream adapter. It
// supports both long-poll pulls (getUpdates) and webhook receive; the
// import watermark is kept per chat id, keyed by the bot's monotonic
// update id.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams"
)

const (
	defaultTokenEnv    = "TELEGRAM_BOT_TOKEN"
	defaultPollTimeout = 20 // seconds, must stay below the adapter fetch deadline
	defaultPageLimit   = 100
)

// Config is the stream-specific configuration.
type Config struct {
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `json:"token_env,omitempty"`
	// APIURL overrides the Bot API base URL (tests, proxies).
	APIURL string `json:"api_url,omitempty"`
	// AllowedChats restricts imports to these chat ids; empty means all.
	AllowedChats []int64 `json:"allowed_chats,omitempty"`
	// PollTimeout is the long-poll hold in seconds.
	PollTimeout int `json:"poll_timeout,omitempty"`
}

// Adapter imports Telegram bot updates for one stream.
type Adapter struct {
	env    *streams.Env
	logger *slog.Logger

	stream  *models.StreamConfig
	cfg     Config
	client  *Client
	allowed map[int64]bool
}

// New is the adapter factory.
func New(env *streams.Env) streams.Adapter {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{env: env, logger: logger.With("adapter", "telegram")}
}

func (a *Adapter) Type() models.AdapterType { return models.AdapterTelegram }

func (a *Adapter) ValidateConfig(raw json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse telegram config: %w", err)
	}
	return nil
}

func (a *Adapter) Initialize(_ context.Context, stream *models.StreamConfig) error {
	if err := json.Unmarshal(stream.ConfigJSON, &a.cfg); err != nil {
		return fmt.Errorf("parse telegram config: %w", err)
	}
	a.stream = stream
	a.logger = a.logger.With("stream_id", stream.StreamID)

	tokenEnv := a.cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = defaultTokenEnv
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		return fmt.Errorf("telegram token not set (env %s)", tokenEnv)
	}
	a.client = NewClient(token, a.cfg.APIURL, a.env.HTTPClient)

	a.allowed = make(map[int64]bool, len(a.cfg.AllowedChats))
	for _, id := range a.cfg.AllowedChats {
		a.allowed[id] = true
	}
	return nil
}

// Run drains getUpdates until the source is empty. The offset resumes
// from the highest update id across all chat watermarks, so restarts
// never re-fetch acknowledged updates.
func (a *Adapter) Run(ctx context.Context) (int, error) {
	offset, err := a.resumeOffset(ctx)
	if err != nil {
		return 0, err
	}

	timeout := a.cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		updates, err := a.client.GetUpdates(ctx, offset, timeout, defaultPageLimit)
		if err != nil {
			return total, fmt.Errorf("getUpdates: %w", err)
		}
		if len(updates) == 0 {
			return total, nil
		}

		imported, maxID, err := a.ingest(ctx, updates)
		total += imported
		if err != nil {
			return total, err
		}
		offset = maxID + 1

		// A short page means the backlog is drained.
		if len(updates) < defaultPageLimit {
			return total, nil
		}
	}
}

// ReceiveWebhook ingests one pushed update.
func (a *Adapter) ReceiveWebhook(ctx context.Context, payload []byte) (int, error) {
	var update Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return 0, fmt.Errorf("decode webhook update: %w", err)
	}
	if update.UpdateID == 0 && update.Message == nil && update.EditedMessage == nil {
		return 0, fmt.Errorf("webhook payload is not a telegram update")
	}
	imported, _, err := a.ingest(ctx, []Update{update})
	return imported, err
}

// ingest normalises and stores a batch of updates, then advances one
// watermark per touched chat.
func (a *Adapter) ingest(ctx context.Context, updates []Update) (int, int64, error) {
	type chatProgress struct {
		maxUpdateID int64
		maxTime     time.Time
	}

	var batch []models.NormalizedMessage
	progress := make(map[int64]*chatProgress)
	maxID := int64(0)

	for _, u := range updates {
		if u.UpdateID > maxID {
			maxID = u.UpdateID
		}
		msg := u.Message
		if msg == nil {
			msg = u.EditedMessage
		}
		if msg == nil || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if len(a.allowed) > 0 && !a.allowed[msg.Chat.ID] {
			continue
		}

		normalized := a.normalize(u.UpdateID, msg)
		batch = append(batch, normalized)

		p := progress[msg.Chat.ID]
		if p == nil {
			p = &chatProgress{}
			progress[msg.Chat.ID] = p
		}
		if u.UpdateID > p.maxUpdateID {
			p.maxUpdateID = u.UpdateID
		}
		if normalized.Timestamp.After(p.maxTime) {
			p.maxTime = normalized.Timestamp
		}
	}

	imported := 0
	if len(batch) > 0 {
		var err error
		imported, err = a.env.Messages.UpsertMessages(ctx, a.stream.TenantID, batch)
		if err != nil {
			return 0, 0, fmt.Errorf("store messages: %w", err)
		}
	}

	for chatID, p := range progress {
		if _, err := a.env.Watermarks.AdvanceImportWatermark(
			ctx, a.stream.StreamID, strconv.FormatInt(chatID, 10),
			p.maxTime, strconv.FormatInt(p.maxUpdateID, 10), false); err != nil {
			return imported, maxID, fmt.Errorf("advance watermark for chat %d: %w", chatID, err)
		}
	}

	if len(batch) > 0 {
		a.logger.Info("Telegram updates ingested",
			"updates", len(updates), "messages", len(batch), "imported", imported)
	}
	return imported, maxID, nil
}

// normalize converts one Bot API message. Forum topics land in
// metadata.topic so they participate in conversation grouping.
func (a *Adapter) normalize(updateID int64, msg *Message) models.NormalizedMessage {
	channel := msg.Chat.Title
	if channel == "" {
		channel = strconv.FormatInt(msg.Chat.ID, 10)
	}

	md := models.MessageMetadata{
		ChatID: strconv.FormatInt(msg.Chat.ID, 10),
	}
	if msg.MessageThreadID != 0 {
		md.Topic = strconv.FormatInt(msg.MessageThreadID, 10)
	}
	if msg.ReplyToMessage != nil {
		md.ReplyToMessageID = strconv.FormatInt(msg.ReplyToMessage.MessageID, 10)
	}

	raw, _ := json.Marshal(struct {
		UpdateID int64    `json:"update_id"`
		Message  *Message `json:"message"`
	}{updateID, msg})

	return models.NormalizedMessage{
		StreamID:  a.stream.StreamID,
		MessageID: strconv.FormatInt(msg.MessageID, 10),
		Timestamp: time.Unix(msg.Date, 0).UTC(),
		Author:    msg.From.DisplayName(),
		Content:   msg.Text,
		Channel:   channel,
		Metadata:  md,
		RawData:   raw,
	}
}

// resumeOffset derives the getUpdates offset from the highest
// acknowledged update id across the stream's chat watermarks.
func (a *Adapter) resumeOffset(ctx context.Context) (int64, error) {
	wms, err := a.env.Watermarks.ListImportWatermarks(ctx, a.stream.StreamID)
	if err != nil {
		return 0, fmt.Errorf("list watermarks: %w", err)
	}

	maxID := int64(0)
	for _, wm := range wms {
		if wm.LastImportedID == nil {
			continue
		}
		id, err := strconv.ParseInt(*wm.LastImportedID, 10, 64)
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
	}
	if maxID == 0 {
		return 0, nil
	}
	return maxID + 1, nil
}

func (a *Adapter) Shutdown(context.Context) error { return nil }
