package streams

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	testdb "github.com/Lionscraft-io/DocPythia-sub001/test/database"
)

// fakeAdapter counts runs and can be made to fail or block.
type fakeAdapter struct {
	runs     atomic.Int64
	imported int
	runErr   error
	block    chan struct{}
	webhooks atomic.Int64
}

func (f *fakeAdapter) Type() models.AdapterType               { return models.AdapterCSVDrop }
func (f *fakeAdapter) ValidateConfig(json.RawMessage) error   { return nil }
func (f *fakeAdapter) Initialize(context.Context, *models.StreamConfig) error { return nil }
func (f *fakeAdapter) Shutdown(context.Context) error         { return nil }

func (f *fakeAdapter) Run(ctx context.Context) (int, error) {
	f.runs.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.imported, f.runErr
}

func (f *fakeAdapter) ReceiveWebhook(context.Context, []byte) (int, error) {
	f.webhooks.Add(1)
	return 1, nil
}

type managerEnv struct {
	manager *Manager
	streams *services.StreamService
	cfg     *config.PipelineConfig
	env     *Env
}

func newManagerEnv(t *testing.T) *managerEnv {
	t.Helper()
	client := testdb.NewTestClient(t)
	env := &Env{
		Messages:   services.NewMessageService(client),
		Watermarks: services.NewWatermarkService(client),
		Warnings:   services.NewSystemWarningsService(),
	}
	cfg := config.DefaultPipelineConfig()
	streamSvc := services.NewStreamService(client)
	return &managerEnv{
		manager: NewManager(env, streamSvc, cfg),
		streams: streamSvc,
		cfg:     cfg,
		env:     env,
	}
}

func (m *managerEnv) createStream(t *testing.T, streamID string) *models.StreamConfig {
	t.Helper()
	sc, err := m.streams.CreateStream(context.Background(), models.CreateStreamRequest{
		TenantID:    "acme",
		StreamID:    streamID,
		AdapterType: models.AdapterCSVDrop,
		ConfigJSON:  json.RawMessage(`{"drop_dir":"/tmp/drops"}`),
	})
	require.NoError(t, err)
	return sc
}

func TestManager_LoadStreamsRegistersEnabled(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	m.createStream(t, "csv-a")
	m.createStream(t, "csv-b")

	adapters := map[string]*fakeAdapter{}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter {
		a := &fakeAdapter{imported: 2}
		adapters["csv"] = a
		return a
	})

	require.NoError(t, m.manager.LoadStreams(ctx))
	statuses := m.manager.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "csv-a", statuses[0].StreamID)
	assert.Equal(t, "csv-b", statuses[1].StreamID)
}

func TestManager_RunOnceTracksStatus(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	sc := m.createStream(t, "csv-a")

	adapter := &fakeAdapter{imported: 3}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return adapter })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))

	imported, err := m.manager.RunOnce(ctx, "csv-a")
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	statuses := m.manager.Statuses()
	require.Len(t, statuses, 1)
	assert.NotNil(t, statuses[0].LastRunAt)
	assert.EqualValues(t, 3, statuses[0].MessagesImported)
	assert.Zero(t, statuses[0].ConsecutiveFailures)
}

func TestManager_RunOnceUnknownStream(t *testing.T) {
	m := newManagerEnv(t)
	_, err := m.manager.RunOnce(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownStream)
}

func TestManager_ConcurrentRunsCoalesce(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	sc := m.createStream(t, "csv-a")

	adapter := &fakeAdapter{block: make(chan struct{})}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return adapter })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))

	done := make(chan error, 1)
	go func() {
		_, err := m.manager.RunOnce(ctx, "csv-a")
		done <- err
	}()

	// Wait for the first run to be in flight, then try a second.
	require.Eventually(t, func() bool { return adapter.runs.Load() == 1 },
		time.Second, 5*time.Millisecond)
	imported, err := m.manager.RunOnce(ctx, "csv-a")
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.EqualValues(t, 1, adapter.runs.Load())

	close(adapter.block)
	require.NoError(t, <-done)
}

func TestManager_DisablesStreamAfterConsecutiveFailures(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	m.cfg.StreamFailureLimit = 3
	sc := m.createStream(t, "csv-a")

	adapter := &fakeAdapter{runErr: errors.New("drop dir unreadable")}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return adapter })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))

	for i := 0; i < 3; i++ {
		_, err := m.manager.RunOnce(ctx, "csv-a")
		require.Error(t, err)
	}

	got, err := m.streams.GetStream(ctx, "csv-a")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.DisabledFor)
	assert.Contains(t, *got.DisabledFor, "consecutive failures")

	statuses := m.manager.Statuses()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Enabled)
	assert.Equal(t, 3, statuses[0].ConsecutiveFailures)
}

func TestManager_SuccessResetsFailureCount(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	m.cfg.StreamFailureLimit = 3
	sc := m.createStream(t, "csv-a")

	adapter := &fakeAdapter{runErr: errors.New("transient")}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return adapter })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))

	_, err := m.manager.RunOnce(ctx, "csv-a")
	require.Error(t, err)
	adapter.runErr = nil
	_, err = m.manager.RunOnce(ctx, "csv-a")
	require.NoError(t, err)

	statuses := m.manager.Statuses()
	assert.Zero(t, statuses[0].ConsecutiveFailures)
	assert.Empty(t, statuses[0].LastError)
}

func TestManager_BackpressureSkipsRun(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	m.cfg.BackpressureThreshold = 2
	sc := m.createStream(t, "csv-a")

	// Three pending messages put the stream over the threshold.
	_, err := m.env.Messages.UpsertMessages(ctx, "acme", []models.NormalizedMessage{
		{StreamID: "csv-a", MessageID: "1", Timestamp: time.Now().UTC(), Author: "a", Content: "x"},
		{StreamID: "csv-a", MessageID: "2", Timestamp: time.Now().UTC(), Author: "a", Content: "y"},
		{StreamID: "csv-a", MessageID: "3", Timestamp: time.Now().UTC(), Author: "a", Content: "z"},
	})
	require.NoError(t, err)

	adapter := &fakeAdapter{imported: 1}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return adapter })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))

	imported, err := m.manager.RunOnce(ctx, "csv-a")
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.Zero(t, adapter.runs.Load())
}

func TestManager_RunAllRunsEveryStream(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()

	var adapters []*fakeAdapter
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter {
		a := &fakeAdapter{imported: 1}
		adapters = append(adapters, a)
		return a
	})
	for _, id := range []string{"csv-a", "csv-b", "csv-c"} {
		require.NoError(t, m.manager.RegisterStream(ctx, m.createStream(t, id)))
	}

	require.NoError(t, m.manager.RunAll(ctx))
	for _, a := range adapters {
		assert.EqualValues(t, 1, a.runs.Load())
	}
}

func TestManager_HandleWebhook(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	sc := m.createStream(t, "csv-a")

	adapter := &fakeAdapter{}
	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return adapter })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))

	imported, err := m.manager.HandleWebhook(ctx, "csv-a", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.EqualValues(t, 1, adapter.webhooks.Load())

	_, err = m.manager.HandleWebhook(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownStream)
}

func TestManager_UnregisterStream(t *testing.T) {
	m := newManagerEnv(t)
	ctx := context.Background()
	sc := m.createStream(t, "csv-a")

	m.manager.RegisterFactory(models.AdapterCSVDrop, func(*Env) Adapter { return &fakeAdapter{} })
	require.NoError(t, m.manager.RegisterStream(ctx, sc))
	require.NoError(t, m.manager.UnregisterStream(ctx, "csv-a"))

	_, err := m.manager.RunOnce(ctx, "csv-a")
	assert.ErrorIs(t, err, ErrUnknownStream)
	assert.ErrorIs(t, m.manager.UnregisterStream(ctx, "csv-a"), ErrUnknownStream)
}
