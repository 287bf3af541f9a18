package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams"
	testdb "github.com/Lionscraft-io/DocPythia-sub001/test/database"
)

// botAPIStub serves getUpdates from a queue and records the offsets it
// was asked for.
type botAPIStub struct {
	mu      sync.Mutex
	batches [][]Update
	offsets []int64
}

func (s *botAPIStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/bottest-token/getUpdates")

		var params struct {
			Offset int64 `json:"offset"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))

		s.mu.Lock()
		s.offsets = append(s.offsets, params.Offset)
		var batch []Update
		if len(s.batches) > 0 {
			batch = s.batches[0]
			s.batches = s.batches[1:]
		}
		s.mu.Unlock()

		resp := map[string]any{"ok": true, "result": batch}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func update(updateID, messageID, chatID int64, text string, threadID int64) Update {
	return Update{
		UpdateID: updateID,
		Message: &Message{
			MessageID:       messageID,
			From:            &User{Username: "alice"},
			Chat:            Chat{ID: chatID, Title: "Acme Support", Type: "supergroup"},
			Date:            time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC).Unix(),
			Text:            text,
			MessageThreadID: threadID,
		},
	}
}

func newAdapter(t *testing.T, apiURL string) (*Adapter, *streams.Env) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")

	client := testdb.NewTestClient(t)
	env := &streams.Env{
		Messages:   services.NewMessageService(client),
		Watermarks: services.NewWatermarkService(client),
		Warnings:   services.NewSystemWarningsService(),
	}

	cfgJSON, err := json.Marshal(Config{APIURL: apiURL, PollTimeout: 0})
	require.NoError(t, err)

	adapter := New(env).(*Adapter)
	require.NoError(t, adapter.ValidateConfig(cfgJSON))
	require.NoError(t, adapter.Initialize(context.Background(), &models.StreamConfig{
		TenantID:    "acme",
		StreamID:    "telegram-main",
		AdapterType: models.AdapterTelegram,
		ConfigJSON:  cfgJSON,
	}))
	return adapter, env
}

func TestAdapter_LongPollImportsAndTracksOffsets(t *testing.T) {
	stub := &botAPIStub{batches: [][]Update{{
		update(101, 1, -500, "How do I set the RPC timeout?", 0),
		update(102, 2, -500, "Use rpc_timeout in config.toml", 7),
	}}}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	adapter, env := newAdapter(t, server.URL)
	ctx := context.Background()

	imported, err := adapter.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	from := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	msgs, err := env.Messages.MessagesInWindow(ctx, "telegram-main", from, from.Add(2*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Channel)
	assert.Equal(t, "Acme Support", *msgs[0].Channel)

	// Forum topic lands in metadata.topic.
	md, err := msgs[1].DecodedMetadata()
	require.NoError(t, err)
	assert.Equal(t, "7", md.Topic)
	assert.Equal(t, "-500", md.ChatID)

	// Watermark per chat id carries the max update id.
	wm, err := env.Watermarks.GetImportWatermark(ctx, "telegram-main", "-500")
	require.NoError(t, err)
	require.NotNil(t, wm.LastImportedID)
	assert.Equal(t, "102", *wm.LastImportedID)

	// The next run resumes past the acknowledged updates.
	_, err = adapter.Run(ctx)
	require.NoError(t, err)
	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.GreaterOrEqual(t, len(stub.offsets), 2)
	assert.EqualValues(t, 0, stub.offsets[0])
	assert.EqualValues(t, 103, stub.offsets[len(stub.offsets)-1])
}

func TestAdapter_WebhookReceive(t *testing.T) {
	adapter, env := newAdapter(t, "http://unused.invalid")
	ctx := context.Background()

	payload, err := json.Marshal(update(201, 5, -600, "Node crashed after upgrade", 0))
	require.NoError(t, err)

	imported, err := adapter.ReceiveWebhook(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	wm, err := env.Watermarks.GetImportWatermark(ctx, "telegram-main", "-600")
	require.NoError(t, err)
	require.NotNil(t, wm.LastImportedID)
	assert.Equal(t, "201", *wm.LastImportedID)

	_, err = adapter.ReceiveWebhook(ctx, []byte(`{"unexpected":"shape"}`))
	assert.Error(t, err)
}

func TestAdapter_ChatAllowlistFilters(t *testing.T) {
	stub := &botAPIStub{batches: [][]Update{{
		update(301, 1, -500, "allowed chat", 0),
		update(302, 2, -999, "blocked chat", 0),
	}}}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	client := testdb.NewTestClient(t)
	env := &streams.Env{
		Messages:   services.NewMessageService(client),
		Watermarks: services.NewWatermarkService(client),
		Warnings:   services.NewSystemWarningsService(),
	}
	cfgJSON, err := json.Marshal(Config{APIURL: server.URL, AllowedChats: []int64{-500}})
	require.NoError(t, err)
	adapter := New(env).(*Adapter)
	require.NoError(t, adapter.Initialize(context.Background(), &models.StreamConfig{
		TenantID:    "acme",
		StreamID:    "telegram-main",
		AdapterType: models.AdapterTelegram,
		ConfigJSON:  cfgJSON,
	}))

	imported, err := adapter.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	// The blocked chat gets no watermark.
	_, err = env.Watermarks.GetImportWatermark(context.Background(), "telegram-main", "-999")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestAdapter_MissingTokenFailsInitialize(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	adapter := New(&streams.Env{}).(*Adapter)
	err := adapter.Initialize(context.Background(), &models.StreamConfig{
		StreamID:   "telegram-main",
		ConfigJSON: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "alice", (&User{Username: "alice", FirstName: "Alice"}).DisplayName())
	assert.Equal(t, "Alice", (&User{FirstName: "Alice"}).DisplayName())
	assert.Equal(t, fmt.Sprintf("user-%d", 42), (&User{ID: 42}).DisplayName())
	var nilUser *User
	assert.Equal(t, "unknown", nilUser.DisplayName())
}
