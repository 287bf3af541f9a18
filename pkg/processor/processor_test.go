package processor

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/docindex"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/pipeline"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
	testdb "github.com/Lionscraft-io/DocPythia-sub001/test/database"
)

// hashEmbedder derives deterministic vectors from text, so retrieval
// behaves stably without a provider.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255.0
	}
	return vec, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int { return 8 }
func (hashEmbedder) Name() string    { return "hash-embedder" }

// staticIndex serves a fixed documentation index.
type staticIndex struct {
	idx *docindex.DocIndex
}

func (s *staticIndex) Index(context.Context) (*docindex.DocIndex, string, error) {
	return s.idx, "docs/rpc.md - RPC reference", nil
}

type testEnv struct {
	client     *database.Client
	messages   *services.MessageService
	watermarks *services.WatermarkService
	classes    *services.ClassificationService
	proposals  *services.ProposalService
	streams    *services.StreamService
	gateway    *pipeline.ScriptedGateway
	processor  *Processor
	cfg        *config.PipelineConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client := testdb.NewTestClient(t)

	cfg := config.DefaultPipelineConfig()
	gateway := pipeline.NewScriptedGateway()

	env := &testEnv{
		client:     client,
		messages:   services.NewMessageService(client),
		watermarks: services.NewWatermarkService(client),
		classes:    services.NewClassificationService(client),
		proposals:  services.NewProposalService(client),
		streams:    services.NewStreamService(client),
		gateway:    gateway,
		cfg:        cfg,
	}

	appCfg := &config.Config{
		Pipeline: cfg,
		TenantRegistry: config.NewTenantRegistry(map[string]*config.TenantConfig{
			"acme": {
				ProjectName:        "Acme Chain",
				ProjectDescription: "A test network",
				DocPurpose:         "operator documentation",
				TargetAudience:     "node operators",
			},
		}),
	}

	env.processor = New(Deps{
		DB:              client,
		Streams:         env.streams,
		Messages:        env.messages,
		Watermarks:      env.watermarks,
		Classifications: env.classes,
		RagContexts:     services.NewRagContextService(client),
		Proposals:       env.proposals,
		Rulesets:        services.NewRulesetService(client),
		RunLogs:         services.NewRunLogService(client),
		Gateway:         gateway,
		Embedding:       hashEmbedder{},
		VectorStore:     vectorstore.New(nil, 8, nil),
		Config:          appCfg,
	})

	idx := &docindex.DocIndex{GeneratedAt: time.Now()}
	idx.Pages = append(idx.Pages, docindex.Page{Path: "docs/rpc.md", Title: "RPC reference"})
	env.processor.RegisterIndexProvider("acme", &staticIndex{idx: idx})

	return env
}

func (e *testEnv) createStream(t *testing.T, streamID string) {
	t.Helper()
	_, err := e.streams.CreateStream(context.Background(), models.CreateStreamRequest{
		TenantID:    "acme",
		StreamID:    streamID,
		AdapterType: models.AdapterTelegram,
		ConfigJSON:  json.RawMessage(`{}`),
	})
	require.NoError(t, err)
}

func (e *testEnv) seedMessages(t *testing.T, streamID string, times ...time.Time) []*models.UnifiedMessage {
	t.Helper()
	ctx := context.Background()
	msgs := make([]models.NormalizedMessage, 0, len(times))
	for i, ts := range times {
		msgs = append(msgs, models.NormalizedMessage{
			StreamID:  streamID,
			MessageID: fmt.Sprintf("m%d", i+1),
			Timestamp: ts,
			Author:    "alice",
			Content:   fmt.Sprintf("The RPC timeout default is %d seconds.", 30+i),
			Channel:   "general",
		})
	}
	_, err := e.messages.UpsertMessages(ctx, "acme", msgs)
	require.NoError(t, err)

	stored, err := e.messages.MessagesInWindow(ctx, streamID, times[0].Add(-time.Minute), times[len(times)-1].Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, stored, len(times))
	return stored
}

func classifyResponse(ids ...int64) string {
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, fmt.Sprintf(
			`{"message_id":%d,"category":"information","doc_value_reason":"documents the rpc timeout default","rag_search_criteria":["rpc","timeout","default"]}`, id))
	}
	joined := ""
	for i, it := range items {
		if i > 0 {
			joined += ","
		}
		joined += it
	}
	return fmt.Sprintf(
		`{"messages_with_doc_value":[%s],"total_analyzed":%d,"messages_with_value":%d,"context_used":false}`,
		joined, len(ids), len(ids))
}

func proposalResponse(id int64) string {
	return fmt.Sprintf(
		`{"proposals":[{"message_ids":[%d],"page":"docs/rpc.md","update_type":"UPDATE","suggested_text":"The RPC timeout defaults to 30 seconds.","confidence":0.9,"reasoning":"stated by a maintainer"}]}`, id)
}

func TestProcessor_CommitsBatchAtomically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")

	windowStart := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	batchEnd := windowStart.Add(env.cfg.BatchWindow)
	stored := env.seedMessages(t, "telegram-main",
		windowStart.Add(time.Hour), windowStart.Add(time.Hour+time.Minute))

	_, err := env.watermarks.InitProcessingWatermark(ctx, "telegram-main", windowStart)
	require.NoError(t, err)

	env.gateway.
		Script(models.PurposeAnalysis,
			classifyResponse(stored[0].ID, stored[1].ID),
			`{"summary":"maintainer confirmed the rpc timeout default"}`).
		Script(models.PurposeChangeGeneration, proposalResponse(stored[0].ID))

	require.NoError(t, env.processor.ProcessStream(ctx, "telegram-main"))

	wm, err := env.watermarks.GetProcessingWatermark(ctx, "telegram-main")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkTime.Equal(batchEnd))
	require.NotNil(t, wm.LastProcessedBatch)
	assert.Equal(t, BatchID("telegram-main", windowStart, batchEnd), *wm.LastProcessedBatch)

	proposals, total, err := env.proposals.ListProposals(ctx, models.ProposalFilters{TenantID: "acme"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, models.ProposalStatusPending, proposals[0].Status)
	assert.Equal(t, "docs/rpc.md", proposals[0].Page)
	assert.NotEmpty(t, proposals[0].ConversationID)

	rows, err := env.classes.GetClassificationsByBatch(ctx, *wm.LastProcessedBatch)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	for _, m := range stored {
		got, err := env.messages.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessingStatusCompleted, got.ProcessingStatus)
		require.NotNil(t, got.ConversationID)
		assert.Equal(t, proposals[0].ConversationID, *got.ConversationID)
	}

	pending, err := env.messages.PendingCount(ctx, "telegram-main")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestProcessor_EmptyWindowAdvancesWatermarkOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")

	windowStart := time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Hour)
	_, err := env.watermarks.InitProcessingWatermark(ctx, "telegram-main", windowStart)
	require.NoError(t, err)

	require.NoError(t, env.processor.ProcessStream(ctx, "telegram-main"))

	wm, err := env.watermarks.GetProcessingWatermark(ctx, "telegram-main")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkTime.Equal(windowStart.Add(env.cfg.BatchWindow)))
	assert.Empty(t, env.gateway.Calls())
}

func TestProcessor_InitialWatermarkFromEarliestMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")

	// A backlog far older than the bootstrap lookback: the watermark
	// must seed from the earliest message, not from now minus seven days.
	old := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	stored := env.seedMessages(t, "telegram-main", old, old.Add(time.Minute))

	env.gateway.
		Script(models.PurposeAnalysis,
			classifyResponse(stored[0].ID, stored[1].ID),
			`{"summary":"old backlog"}`).
		Script(models.PurposeChangeGeneration, proposalResponse(stored[0].ID))

	require.NoError(t, env.processor.ProcessStream(ctx, "telegram-main"))

	wm, err := env.watermarks.GetProcessingWatermark(ctx, "telegram-main")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkTime.Equal(old.Add(env.cfg.BatchWindow)))
}

func TestProcessor_PipelineFailureLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")

	windowStart := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	stored := env.seedMessages(t, "telegram-main", windowStart.Add(time.Hour))
	_, err := env.watermarks.InitProcessingWatermark(ctx, "telegram-main", windowStart)
	require.NoError(t, err)

	// Classification succeeds but generation has no scripted response,
	// so the generate step fails mid-pipeline.
	env.gateway.Script(models.PurposeAnalysis, classifyResponse(stored[0].ID))

	err = env.processor.ProcessStream(ctx, "telegram-main")
	require.Error(t, err)

	// Watermark unmoved, no proposals, messages pending with a recorded
	// failure.
	wm, err := env.watermarks.GetProcessingWatermark(ctx, "telegram-main")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkTime.Equal(windowStart))

	_, total, err := env.proposals.ListProposals(ctx, models.ProposalFilters{TenantID: "acme"})
	require.NoError(t, err)
	assert.Zero(t, total)

	got, err := env.messages.GetMessage(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusPending, got.ProcessingStatus)
	assert.Equal(t, 1, got.FailureCount)
	require.NotNil(t, got.LastError)
	assert.NotEmpty(t, *got.LastError)
}

func TestProcessor_OversizedWindowKeepsWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")
	env.cfg.MaxBatchSize = 2

	windowStart := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	stored := env.seedMessages(t, "telegram-main",
		windowStart.Add(time.Hour),
		windowStart.Add(time.Hour+time.Minute),
		windowStart.Add(time.Hour+2*time.Minute))
	_, err := env.watermarks.InitProcessingWatermark(ctx, "telegram-main", windowStart)
	require.NoError(t, err)

	env.gateway.
		Script(models.PurposeAnalysis,
			classifyResponse(stored[0].ID, stored[1].ID),
			`{"summary":"capped batch"}`).
		Script(models.PurposeChangeGeneration, proposalResponse(stored[0].ID))

	require.NoError(t, env.processor.ProcessStream(ctx, "telegram-main"))

	// Capped batch completed, excess message still pending, watermark
	// held so the window is revisited.
	wm, err := env.watermarks.GetProcessingWatermark(ctx, "telegram-main")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkTime.Equal(windowStart))

	pending, err := env.messages.PendingCount(ctx, "telegram-main")
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	got, err := env.messages.GetMessage(ctx, stored[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusPending, got.ProcessingStatus)
}

func TestProcessor_FutureWindowWaits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")

	// Watermark one hour behind now: the 24h window has not elapsed.
	_, err := env.watermarks.InitProcessingWatermark(ctx, "telegram-main", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, env.processor.ProcessStream(ctx, "telegram-main"))
	assert.Empty(t, env.gateway.Calls())
}

func TestProcessor_TickVisitsPendingStreams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createStream(t, "telegram-main")

	windowStart := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	stored := env.seedMessages(t, "telegram-main", windowStart.Add(time.Hour))
	_, err := env.watermarks.InitProcessingWatermark(ctx, "telegram-main", windowStart)
	require.NoError(t, err)

	env.gateway.
		Script(models.PurposeAnalysis,
			classifyResponse(stored[0].ID),
			`{"summary":"single message batch"}`).
		Script(models.PurposeChangeGeneration, proposalResponse(stored[0].ID))

	require.NoError(t, env.processor.Tick(ctx))

	pending, err := env.messages.PendingCount(ctx, "telegram-main")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestBatchID_Deterministic(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	a := BatchID("stream-a", start, end)
	b := BatchID("stream-a", start, end)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	assert.NotEqual(t, a, BatchID("stream-b", start, end))
	assert.NotEqual(t, a, BatchID("stream-a", start.Add(time.Hour), end))
}
