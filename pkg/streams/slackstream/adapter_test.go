package slackstream

import (
	"context"
	"encoding/json"
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

// slackAPIStub mimics the two Web API methods the adapter calls.
type slackAPIStub struct {
	mu      sync.Mutex
	history map[string]string // channel → response JSON
	replies map[string]string // thread ts → response JSON
	oldest  []string
}

func (s *slackAPIStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		s.mu.Lock()
		defer s.mu.Unlock()
		switch r.URL.Path {
		case "/conversations.history":
			s.oldest = append(s.oldest, r.Form.Get("oldest"))
			resp, ok := s.history[r.Form.Get("channel")]
			if !ok {
				resp = `{"ok":true,"messages":[],"has_more":false}`
			}
			_, _ = w.Write([]byte(resp))
		case "/conversations.replies":
			resp, ok := s.replies[r.Form.Get("ts")]
			if !ok {
				resp = `{"ok":true,"messages":[],"has_more":false}`
			}
			_, _ = w.Write([]byte(resp))
		default:
			t.Errorf("unexpected slack API call: %s", r.URL.Path)
		}
	}
}

func newAdapter(t *testing.T, apiURL string, channels ...string) (*Adapter, *streams.Env) {
	t.Helper()
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	client := testdb.NewTestClient(t)
	env := &streams.Env{
		Messages:   services.NewMessageService(client),
		Watermarks: services.NewWatermarkService(client),
		Warnings:   services.NewSystemWarningsService(),
	}

	cfgJSON, err := json.Marshal(Config{Channels: channels, APIURL: apiURL + "/"})
	require.NoError(t, err)

	adapter := New(env).(*Adapter)
	require.NoError(t, adapter.ValidateConfig(cfgJSON))
	require.NoError(t, adapter.Initialize(context.Background(), &models.StreamConfig{
		TenantID:    "acme",
		StreamID:    "slack-community",
		AdapterType: models.AdapterSlack,
		ConfigJSON:  cfgJSON,
	}))
	return adapter, env
}

func TestAdapter_PollImportsHistoryAndThreads(t *testing.T) {
	stub := &slackAPIStub{
		history: map[string]string{
			"C100": `{"ok":true,"has_more":false,"messages":[
				{"type":"message","ts":"1759310400.000100","user":"U1","text":"Anyone know the RPC timeout default?","thread_ts":"1759310400.000100","reply_count":1},
				{"type":"message","ts":"1759310500.000200","user":"U2","text":"Release v2 is out"}
			]}`,
		},
		replies: map[string]string{
			"1759310400.000100": `{"ok":true,"has_more":false,"messages":[
				{"type":"message","ts":"1759310400.000100","user":"U1","text":"Anyone know the RPC timeout default?","thread_ts":"1759310400.000100"},
				{"type":"message","ts":"1759310460.000300","user":"U3","text":"30 seconds, set rpc_timeout to change it","thread_ts":"1759310400.000100"}
			]}`,
		},
	}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	adapter, env := newAdapter(t, server.URL, "C100")
	ctx := context.Background()

	imported, err := adapter.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	from := time.Unix(1759310000, 0).UTC()
	msgs, err := env.Messages.MessagesInWindow(ctx, "slack-community", from, from.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// The thread reply carries its parent for reply-chain rendering.
	var reply *models.UnifiedMessage
	for _, m := range msgs {
		if m.MessageID == "1759310460.000300" {
			reply = m
		}
	}
	require.NotNil(t, reply)
	md, err := reply.DecodedMetadata()
	require.NoError(t, err)
	assert.Equal(t, "1759310400.000100", md.ReplyToMessageID)
	assert.Equal(t, "1759310400.000100", md.ThreadID)

	// Watermark per channel keyed by the highest ts.
	wm, err := env.Watermarks.GetImportWatermark(ctx, "slack-community", "C100")
	require.NoError(t, err)
	require.NotNil(t, wm.LastImportedID)
	assert.Equal(t, "1759310500.000200", *wm.LastImportedID)

	// The next poll resumes from the watermark.
	_, err = adapter.Run(ctx)
	require.NoError(t, err)
	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.oldest, 2)
	assert.Empty(t, stub.oldest[0])
	assert.Equal(t, "1759310500.000200", stub.oldest[1])
}

func TestAdapter_SkipsSystemMessages(t *testing.T) {
	stub := &slackAPIStub{
		history: map[string]string{
			"C200": `{"ok":true,"has_more":false,"messages":[
				{"type":"message","subtype":"channel_join","ts":"1759310400.000100","user":"U1","text":"<@U1> has joined"},
				{"type":"message","ts":"1759310500.000200","user":"U2","text":"actual content"}
			]}`,
		},
	}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	adapter, _ := newAdapter(t, server.URL, "C200")
	imported, err := adapter.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
}

func TestAdapter_ChannelFailureDoesNotStopOthers(t *testing.T) {
	stub := &slackAPIStub{
		history: map[string]string{
			"BAD":  `{"ok":false,"error":"channel_not_found"}`,
			"C300": `{"ok":true,"has_more":false,"messages":[{"type":"message","ts":"1759310500.000200","user":"U2","text":"still imported"}]}`,
		},
	}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	adapter, _ := newAdapter(t, server.URL, "BAD", "C300")
	imported, err := adapter.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD")
	assert.Equal(t, 1, imported)
}

func TestAdapter_ValidateConfig(t *testing.T) {
	adapter := New(&streams.Env{}).(*Adapter)
	assert.Error(t, adapter.ValidateConfig(json.RawMessage(`{}`)))
	assert.NoError(t, adapter.ValidateConfig(json.RawMessage(`{"channels":["C1"]}`)))
}

func TestTSToTime(t *testing.T) {
	ts, err := tsToTime("1759310400.000100")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1759310400, 100*1000).UTC(), ts)

	_, err = tsToTime("not-a-ts")
	assert.Error(t, err)

	assert.Positive(t, compareTS("1700000000.000100", "1700000000.000099"))
	assert.Negative(t, compareTS("1700000000.5", "1700000001.0"))
	assert.Zero(t, compareTS("5.10", "5.1"))
}
