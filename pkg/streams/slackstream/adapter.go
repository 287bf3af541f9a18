// Package slackstream implements the pollable chat-API stream adapter
// on top of the Slack Web API. Each run pulls conversation history (and
// thread replies) for the configured channels, with one import
// watermark per channel keyed by Slack's monotonic message ts.
package slackstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams"
)

const (
	defaultTokenEnv = "SLACK_BOT_TOKEN"
	defaultPageSize = 200
)

// Config is the stream-specific configuration.
type Config struct {
	// Channels lists the channel IDs to poll.
	Channels []string `json:"channels"`
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `json:"token_env,omitempty"`
	// APIURL overrides the Slack API base URL (tests, proxies).
	APIURL string `json:"api_url,omitempty"`
	// PageSize caps messages per history page.
	PageSize int `json:"page_size,omitempty"`
}

// Adapter polls Slack channels for one stream.
type Adapter struct {
	env    *streams.Env
	logger *slog.Logger

	stream *models.StreamConfig
	cfg    Config
	api    *goslack.Client
}

// New is the adapter factory.
func New(env *streams.Env) streams.Adapter {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{env: env, logger: logger.With("adapter", "slack")}
}

func (a *Adapter) Type() models.AdapterType { return models.AdapterSlack }

func (a *Adapter) ValidateConfig(raw json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse slack config: %w", err)
	}
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("slack config: at least one channel is required")
	}
	return nil
}

func (a *Adapter) Initialize(_ context.Context, stream *models.StreamConfig) error {
	if err := json.Unmarshal(stream.ConfigJSON, &a.cfg); err != nil {
		return fmt.Errorf("parse slack config: %w", err)
	}
	a.stream = stream
	a.logger = a.logger.With("stream_id", stream.StreamID)

	tokenEnv := a.cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = defaultTokenEnv
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		return fmt.Errorf("slack token not set (env %s)", tokenEnv)
	}

	opts := []goslack.Option{}
	if a.env.HTTPClient != nil {
		opts = append(opts, goslack.OptionHTTPClient(a.env.HTTPClient))
	}
	if a.cfg.APIURL != "" {
		opts = append(opts, goslack.OptionAPIURL(a.cfg.APIURL))
	}
	a.api = goslack.New(token, opts...)
	return nil
}

// Run polls every configured channel once. A failing channel does not
// stop the others; the first error is returned after all channels ran.
func (a *Adapter) Run(ctx context.Context) (int, error) {
	total := 0
	var firstErr error
	for _, channel := range a.cfg.Channels {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		imported, err := a.pollChannel(ctx, channel)
		total += imported
		if err != nil {
			a.logger.Error("Channel poll failed", "channel", channel, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("channel %s: %w", channel, err)
			}
		}
	}
	return total, firstErr
}

// pollChannel pulls history newer than the channel's watermark, follows
// threads, stores the batch and advances the watermark.
func (a *Adapter) pollChannel(ctx context.Context, channel string) (int, error) {
	oldest := ""
	wm, err := a.env.Watermarks.GetImportWatermark(ctx, a.stream.StreamID, channel)
	switch {
	case err == nil:
		if wm.LastImportedID != nil {
			oldest = *wm.LastImportedID
		}
	case !errors.Is(err, services.ErrNotFound):
		return 0, fmt.Errorf("load watermark: %w", err)
	}

	pageSize := a.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var batch []models.NormalizedMessage
	cursor := ""
	for {
		history, err := a.api.GetConversationHistoryContext(ctx, &goslack.GetConversationHistoryParameters{
			ChannelID: channel,
			Oldest:    oldest,
			Cursor:    cursor,
			Limit:     pageSize,
		})
		if err != nil {
			return 0, fmt.Errorf("conversations.history: %w", err)
		}

		for _, msg := range history.Messages {
			normalized, ok := a.normalize(channel, msg, "")
			if !ok {
				continue
			}
			batch = append(batch, normalized)

			// A thread parent carries its own ts as ThreadTimestamp.
			if msg.ThreadTimestamp == msg.Timestamp && msg.ReplyCount > 0 {
				replies, err := a.fetchReplies(ctx, channel, msg.Timestamp, pageSize)
				if err != nil {
					return 0, err
				}
				batch = append(batch, replies...)
			}
		}

		if !history.HasMore || history.ResponseMetaData.NextCursor == "" {
			break
		}
		cursor = history.ResponseMetaData.NextCursor
	}

	if len(batch) == 0 {
		return 0, nil
	}

	imported, err := a.env.Messages.UpsertMessages(ctx, a.stream.TenantID, batch)
	if err != nil {
		return 0, fmt.Errorf("store messages: %w", err)
	}

	maxID, maxTime := batch[0].MessageID, batch[0].Timestamp
	for _, m := range batch[1:] {
		if compareTS(m.MessageID, maxID) > 0 {
			maxID = m.MessageID
		}
		if m.Timestamp.After(maxTime) {
			maxTime = m.Timestamp
		}
	}
	if _, err := a.env.Watermarks.AdvanceImportWatermark(
		ctx, a.stream.StreamID, channel, maxTime, maxID, false); err != nil {
		return imported, fmt.Errorf("advance watermark: %w", err)
	}

	a.logger.Info("Slack channel polled",
		"channel", channel, "fetched", len(batch), "imported", imported)
	return imported, nil
}

func (a *Adapter) fetchReplies(ctx context.Context, channel, threadTS string, pageSize int) ([]models.NormalizedMessage, error) {
	var out []models.NormalizedMessage
	cursor := ""
	for {
		msgs, hasMore, nextCursor, err := a.api.GetConversationRepliesContext(ctx, &goslack.GetConversationRepliesParameters{
			ChannelID: channel,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.replies for %s: %w", threadTS, err)
		}
		for _, msg := range msgs {
			if msg.Timestamp == threadTS {
				continue // parent already captured from history
			}
			if normalized, ok := a.normalize(channel, msg, threadTS); ok {
				out = append(out, normalized)
			}
		}
		if !hasMore || nextCursor == "" {
			return out, nil
		}
		cursor = nextCursor
	}
}

// normalize converts one Slack message; system subtypes and empty
// bodies are skipped.
func (a *Adapter) normalize(channel string, msg goslack.Message, replyTo string) (models.NormalizedMessage, bool) {
	if msg.SubType != "" && msg.SubType != "bot_message" {
		return models.NormalizedMessage{}, false
	}
	if strings.TrimSpace(msg.Text) == "" {
		return models.NormalizedMessage{}, false
	}

	ts, err := tsToTime(msg.Timestamp)
	if err != nil {
		return models.NormalizedMessage{}, false
	}

	author := msg.User
	if author == "" {
		author = msg.BotID
	}

	raw, _ := json.Marshal(msg)
	return models.NormalizedMessage{
		StreamID:  a.stream.StreamID,
		MessageID: msg.Timestamp,
		Timestamp: ts,
		Author:    author,
		Content:   msg.Text,
		Channel:   channel,
		Metadata: models.MessageMetadata{
			ThreadID:         msg.ThreadTimestamp,
			ReplyToMessageID: replyTo,
		},
		RawData: raw,
	}, true
}

func (a *Adapter) Shutdown(context.Context) error { return nil }

// tsToTime converts a Slack ts ("1700000000.000100") to a time.
func tsToTime(ts string) (time.Time, error) {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad slack ts %q", ts)
	}
	micros := int64(0)
	if frac != "" {
		padded := (frac + "000000")[:6]
		micros, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad slack ts %q", ts)
		}
	}
	return time.Unix(s, micros*1000).UTC(), nil
}

// compareTS orders Slack ts strings numerically, fraction-aware.
func compareTS(a, b string) int {
	ta, errA := tsToTime(a)
	tb, errB := tsToTime(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return ta.Compare(tb)
}
