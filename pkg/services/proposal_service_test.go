package services

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	testdb "github.com/Lionscraft-io/DocPythia-sub001/test/database"
)

// createTestProposal writes one pending proposal the way the pipeline
// does, inside a transaction.
func createTestProposal(t *testing.T, client *database.Client, svc *ProposalService, tenantID, conversationID, page string) *models.DocProposal {
	t.Helper()

	p := &models.DocProposal{
		TenantID:       tenantID,
		ConversationID: conversationID,
		MessageIDs:     []byte(`[1, 2]`),
		Page:           page,
		UpdateType:     models.UpdateTypeInsert,
		SuggestedText:  "Add a note describing the RPC timeout setting.",
		Reasoning:      "Question answered in chat is not covered by the docs",
		Confidence:     0.85,
	}
	err := client.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return svc.CreateProposalsTx(context.Background(), tx, []*models.DocProposal{p})
	})
	require.NoError(t, err)
	require.NotZero(t, p.ID)
	return p
}

func TestProposalService_CreateAndGet(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewProposalService(client)
	ctx := context.Background()

	p := createTestProposal(t, client, svc, "acme", "conv-1", "docs/networking.md")
	assert.Equal(t, models.ProposalStatusPending, p.Status)
	assert.False(t, p.Frozen())
	assert.Equal(t, []int64{1, 2}, p.DecodedMessageIDs())

	got, err := svc.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs/networking.md", got.Page)
	assert.Equal(t, "Add a note describing the RPC timeout setting.", got.EffectiveText())

	_, err = svc.GetProposal(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProposalService_CreateValidation(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewProposalService(client)
	ctx := context.Background()

	invalid := []*models.DocProposal{{
		TenantID:       "acme",
		ConversationID: "conv-1",
		Page:           "docs/a.md",
		UpdateType:     "APPEND",
		SuggestedText:  "text",
	}}
	err := client.WithTx(ctx, func(tx *sqlx.Tx) error {
		return svc.CreateProposalsTx(ctx, tx, invalid)
	})
	assert.True(t, IsValidationError(err))

	outOfRange := []*models.DocProposal{{
		TenantID:       "acme",
		ConversationID: "conv-1",
		Page:           "docs/a.md",
		UpdateType:     models.UpdateTypeUpdate,
		SuggestedText:  "text",
		Confidence:     1.2,
	}}
	err = client.WithTx(ctx, func(tx *sqlx.Tx) error {
		return svc.CreateProposalsTx(ctx, tx, outOfRange)
	})
	assert.True(t, IsValidationError(err))
}

func TestProposalService_UpdateText(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewProposalService(client)
	ctx := context.Background()

	p := createTestProposal(t, client, svc, "acme", "conv-1", "docs/networking.md")

	updated, err := svc.UpdateProposalText(ctx, p.ID, models.UpdateProposalTextRequest{
		SuggestedText: "Document the rpc_timeout option under Configuration.",
		EditedBy:      "reviewer@acme.io",
	})
	require.NoError(t, err)

	// The generated text is preserved; the edit is layered on top.
	assert.Equal(t, "Add a note describing the RPC timeout setting.", updated.SuggestedText)
	require.NotNil(t, updated.EditedText)
	assert.Equal(t, "Document the rpc_timeout option under Configuration.", *updated.EditedText)
	assert.Equal(t, "Document the rpc_timeout option under Configuration.", updated.EffectiveText())
	require.NotNil(t, updated.EditedBy)
	assert.Equal(t, "reviewer@acme.io", *updated.EditedBy)
	assert.NotNil(t, updated.EditedAt)

	_, err = svc.UpdateProposalText(ctx, p.ID, models.UpdateProposalTextRequest{})
	assert.True(t, IsValidationError(err))

	_, err = svc.UpdateProposalText(ctx, 99999, models.UpdateProposalTextRequest{SuggestedText: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProposalService_SetStatus(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewProposalService(client)
	ctx := context.Background()

	p := createTestProposal(t, client, svc, "acme", "conv-1", "docs/networking.md")

	// Approve, twice — idempotent.
	approved, err := svc.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{
		Status:     models.ProposalStatusApproved,
		ReviewedBy: "reviewer@acme.io",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusApproved, approved.Status)
	assert.Nil(t, approved.DiscardReason)

	again, err := svc.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{
		Status:     models.ProposalStatusApproved,
		ReviewedBy: "reviewer@acme.io",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusApproved, again.Status)

	// Ignore without a reason gets the default one.
	ignored, err := svc.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{
		Status: models.ProposalStatusIgnored,
	})
	require.NoError(t, err)
	require.NotNil(t, ignored.DiscardReason)
	assert.Equal(t, defaultDiscardReason, *ignored.DiscardReason)

	// Reset to pending clears the reason, then approving lands in the
	// same state as a direct approve.
	pending, err := svc.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{
		Status: models.ProposalStatusPending,
	})
	require.NoError(t, err)
	assert.Nil(t, pending.DiscardReason)

	final, err := svc.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{
		Status:     models.ProposalStatusApproved,
		ReviewedBy: "reviewer@acme.io",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusApproved, final.Status)
	assert.Nil(t, final.DiscardReason)

	_, err = svc.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{Status: "archived"})
	assert.True(t, IsValidationError(err))
}

func TestProposalService_ListFilters(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewProposalService(client)
	ctx := context.Background()

	createTestProposal(t, client, svc, "acme", "conv-1", "docs/a.md")
	p2 := createTestProposal(t, client, svc, "acme", "conv-2", "docs/b.md")
	createTestProposal(t, client, svc, "other", "conv-3", "docs/a.md")

	_, err := svc.SetProposalStatus(ctx, p2.ID, models.SetProposalStatusRequest{Status: models.ProposalStatusApproved})
	require.NoError(t, err)

	byTenant, total, err := svc.ListProposals(ctx, models.ProposalFilters{TenantID: "acme"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, byTenant, 2)

	byStatus, _, err := svc.ListProposals(ctx, models.ProposalFilters{TenantID: "acme", Status: models.ProposalStatusApproved})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, p2.ID, byStatus[0].ID)

	byPage, _, err := svc.ListProposals(ctx, models.ProposalFilters{Page: "docs/a.md"})
	require.NoError(t, err)
	assert.Len(t, byPage, 2)

	unbatched, _, err := svc.ListProposals(ctx, models.ProposalFilters{TenantID: "acme", Unbatched: true})
	require.NoError(t, err)
	assert.Len(t, unbatched, 2)

	paged, total, err := svc.ListProposals(ctx, models.ProposalFilters{TenantID: "acme", Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, paged, 1)
}

func TestProposalService_PendingCountForPage(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewProposalService(client)
	ctx := context.Background()

	p1 := createTestProposal(t, client, svc, "acme", "conv-1", "docs/a.md")
	createTestProposal(t, client, svc, "acme", "conv-2", "docs/a.md")
	createTestProposal(t, client, svc, "acme", "conv-3", "docs/b.md")

	count, err := svc.PendingCountForPage(ctx, "acme", "docs/a.md", p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
