package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	testdb "github.com/Lionscraft-io/DocPythia-sub001/test/database"
)

const testAdminTokenEnv = "TEST_DOCPYTHIA_ADMIN_TOKEN"

type apiFixture struct {
	t         *testing.T
	client    *database.Client
	server    *Server
	proposals *services.ProposalService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	t.Setenv(testAdminTokenEnv, "secret-token")

	client := testdb.NewTestClient(t)
	messages := services.NewMessageService(client)
	proposals := services.NewProposalService(client)
	changesets := services.NewChangesetService(client, proposals)

	svcs := Services{
		Conversations: services.NewConversationService(client, messages, proposals),
		Proposals:     proposals,
		Changesets:    changesets,
		Rulesets:      services.NewRulesetService(client),
		LLMCache:      services.NewLLMCacheService(client),
		Warnings:      services.NewSystemWarningsService(),
	}
	tenants := config.NewTenantRegistry(map[string]*config.TenantConfig{
		"acme": {ProjectName: "Acme Chain"},
	})
	cfg := &config.ServerConfig{ListenAddr: ":0", AdminTokenEnv: testAdminTokenEnv}

	server := NewServer(client, svcs, nil, tenants, cfg, nil, nil)
	return &apiFixture{t: t, client: client, server: server, proposals: proposals}
}

// do performs one request against the router. body may be nil.
func (f *apiFixture) do(method, path string, body any, admin bool) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer secret-token")
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedProposal(conversationID, page string) *models.DocProposal {
	f.t.Helper()
	p := &models.DocProposal{
		TenantID:       "acme",
		ConversationID: conversationID,
		MessageIDs:     []byte(`[1]`),
		Page:           page,
		UpdateType:     models.UpdateTypeInsert,
		SuggestedText:  "Document the retry budget for RPC calls.",
		Reasoning:      "Answered in chat, missing from docs",
		Confidence:     0.9,
	}
	err := f.client.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return f.proposals.CreateProposalsTx(context.Background(), tx, []*models.DocProposal{p})
	})
	require.NoError(f.t, err)
	return p
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/healthz", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListConversations(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProposal("conv-1", "docs/rpc.md")

	rec := f.do(http.MethodGet, "/api/v1/conversations?status=pending", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decodeData[[]*models.ConversationView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "conv-1", views[0].ConversationID)

	var envelope struct {
		Pagination pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.EqualValues(t, 1, envelope.Pagination.Total)

	rec = f.do(http.MethodGet, "/api/v1/conversations?status=bogus", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProposalText(t *testing.T) {
	f := newAPIFixture(t)
	p := f.seedProposal("conv-1", "docs/rpc.md")

	path := fmt.Sprintf("/api/v1/proposals/%d", p.ID)
	rec := f.do(http.MethodPatch, path, models.UpdateProposalTextRequest{
		SuggestedText: "Edited text.",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeData[*models.DocProposal](t, rec)
	require.NotNil(t, got.EditedText)
	assert.Equal(t, "Edited text.", *got.EditedText)

	// Unauthenticated mutation is rejected.
	rec = f.do(http.MethodPatch, path, models.UpdateProposalTextRequest{SuggestedText: "x"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProposalFrozenReturnsConflict(t *testing.T) {
	f := newAPIFixture(t)
	p := f.seedProposal("conv-1", "docs/rpc.md")

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/v1/proposals/%d/status", p.ID),
		models.SetProposalStatusRequest{Status: models.ProposalStatusApproved}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/batches",
		models.CreateBatchRequest{ProposalIDs: []int64{p.ID}}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPatch, fmt.Sprintf("/api/v1/proposals/%d", p.ID),
		models.UpdateProposalTextRequest{SuggestedText: "too late"}, true)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "E_FROZEN")
}

func TestBatchLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	p := f.seedProposal("conv-1", "docs/rpc.md")

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/v1/proposals/%d/status", p.ID),
		models.SetProposalStatusRequest{Status: models.ProposalStatusApproved}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/batches",
		models.CreateBatchRequest{ProposalIDs: []int64{p.ID}}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decodeData[*models.ChangesetBatch](t, rec)
	assert.Equal(t, models.BatchStatusDraft, batch.Status)
	assert.Equal(t, 1, batch.TotalProposals)

	// Detail view returns the batch with its frozen proposals.
	rec = f.do(http.MethodGet, "/api/v1/batches/"+batch.BatchID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeData[struct {
		Batch     *models.ChangesetBatch `json:"batch"`
		Proposals []*models.DocProposal  `json:"proposals"`
	}](t, rec)
	require.Len(t, detail.Proposals, 1)
	assert.Equal(t, p.ID, detail.Proposals[0].ID)

	// Submit without a PR generator: batch transitions by record only.
	rec = f.do(http.MethodPost, "/api/v1/batches/"+batch.BatchID+"/generate-pr",
		models.GeneratePRRequest{PRTitle: "docs: retry budget", PRBody: "Adds RPC retry docs."}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decodeData[*models.ChangesetBatch](t, rec)
	assert.Equal(t, models.BatchStatusSubmitted, submitted.Status)

	// Submitting twice is a conflict, not a second submission.
	rec = f.do(http.MethodPost, "/api/v1/batches/"+batch.BatchID+"/generate-pr",
		models.GeneratePRRequest{PRTitle: "again"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/batches/history", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeData[[]*models.ChangesetBatch](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, batch.BatchID, history[0].BatchID)
}

func TestGeneratePRUsesGenerator(t *testing.T) {
	f := newAPIFixture(t)
	f.server.prGen = prGenFunc(func(_ context.Context, batch *models.ChangesetBatch, proposals []*models.DocProposal, req models.GeneratePRRequest) (string, int, string, error) {
		return "https://github.com/acme/docs/pull/42", 42, "docpythia/" + batch.BatchID, nil
	})

	p := f.seedProposal("conv-1", "docs/rpc.md")
	rec := f.do(http.MethodPost, fmt.Sprintf("/api/v1/proposals/%d/status", p.ID),
		models.SetProposalStatusRequest{Status: models.ProposalStatusApproved}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/api/v1/batches",
		models.CreateBatchRequest{ProposalIDs: []int64{p.ID}}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	batch := decodeData[*models.ChangesetBatch](t, rec)

	rec = f.do(http.MethodPost, "/api/v1/batches/"+batch.BatchID+"/generate-pr",
		models.GeneratePRRequest{PRTitle: "docs: retry budget"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decodeData[*models.ChangesetBatch](t, rec)
	require.NotNil(t, submitted.PRURL)
	assert.Equal(t, "https://github.com/acme/docs/pull/42", *submitted.PRURL)
	require.NotNil(t, submitted.PRNumber)
	assert.Equal(t, 42, *submitted.PRNumber)
}

type prGenFunc func(ctx context.Context, batch *models.ChangesetBatch, proposals []*models.DocProposal, req models.GeneratePRRequest) (string, int, string, error)

func (f prGenFunc) GeneratePR(ctx context.Context, batch *models.ChangesetBatch, proposals []*models.DocProposal, req models.GeneratePRRequest) (string, int, string, error) {
	return f(ctx, batch, proposals, req)
}

func TestRulesetRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/rulesets/acme", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPut, "/api/v1/rulesets/acme",
		putRulesetRequest{ContentMarkdown: "## Prompt Context\nPrefer short sentences."}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/rulesets/acme", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	ruleset := decodeData[*models.TenantRuleset](t, rec)
	assert.Contains(t, ruleset.ContentMarkdown, "Prompt Context")
}

func TestLLMCacheSearchRequiresQuery(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/llm-cache", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/llm-cache?query=timeout", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decodeData[[]*models.CacheSearchGroup](t, rec)
	assert.Empty(t, groups)
}

func TestStreamsEndpointsWithoutManager(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/streams", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/streams/s1/run", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminAuthNotConfigured(t *testing.T) {
	f := newAPIFixture(t)
	t.Setenv(testAdminTokenEnv, "")

	p := f.seedProposal("conv-1", "docs/rpc.md")
	rec := f.do(http.MethodPatch, fmt.Sprintf("/api/v1/proposals/%d", p.ID),
		models.UpdateProposalTextRequest{SuggestedText: "x"}, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownTenantRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/conversations?tenant_id=nope", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
