package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	testdb "github.com/Lionscraft-io/DocPythia-sub001/test/database"
)

func TestChangesetService_CreateBatchFreezesProposals(t *testing.T) {
	client := testdb.NewTestClient(t)
	proposals := NewProposalService(client)
	svc := NewChangesetService(client, proposals)
	ctx := context.Background()

	p1 := createTestProposal(t, client, proposals, "acme", "conv-1", "docs/networking.md")
	p2 := createTestProposal(t, client, proposals, "acme", "conv-2", "docs/cli.md")
	for _, p := range []*models.DocProposal{p1, p2} {
		_, err := proposals.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{Status: models.ProposalStatusApproved})
		require.NoError(t, err)
	}

	batch, err := svc.CreateBatch(ctx, "acme", models.CreateBatchRequest{ProposalIDs: []int64{p1.ID, p2.ID}})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusDraft, batch.Status)
	assert.Equal(t, 2, batch.TotalProposals)
	assert.JSONEq(t, `["docs/cli.md", "docs/networking.md"]`, string(batch.AffectedFiles))

	// Both proposals are frozen now: edits and status changes fail.
	_, err = proposals.UpdateProposalText(ctx, p1.ID, models.UpdateProposalTextRequest{SuggestedText: "new text"})
	assert.ErrorIs(t, err, ErrProposalFrozen)

	_, err = proposals.SetProposalStatus(ctx, p2.ID, models.SetProposalStatusRequest{Status: models.ProposalStatusIgnored})
	assert.ErrorIs(t, err, ErrProposalFrozen)

	// And they cannot join a second batch.
	_, err = svc.CreateBatch(ctx, "acme", models.CreateBatchRequest{ProposalIDs: []int64{p1.ID}})
	assert.ErrorIs(t, err, ErrProposalFrozen)

	frozen, err := svc.BatchProposals(ctx, batch.BatchID)
	require.NoError(t, err)
	assert.Len(t, frozen, 2)
}

func TestChangesetService_CreateBatchRejectsUnapproved(t *testing.T) {
	client := testdb.NewTestClient(t)
	proposals := NewProposalService(client)
	svc := NewChangesetService(client, proposals)
	ctx := context.Background()

	pending := createTestProposal(t, client, proposals, "acme", "conv-1", "docs/a.md")

	_, err := svc.CreateBatch(ctx, "acme", models.CreateBatchRequest{ProposalIDs: []int64{pending.ID}})
	assert.True(t, IsValidationError(err))

	// The failed batch must not have frozen anything.
	got, err := proposals.GetProposal(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, got.Frozen())

	_, err = svc.CreateBatch(ctx, "acme", models.CreateBatchRequest{ProposalIDs: []int64{99999}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangesetService_SubmitLifecycle(t *testing.T) {
	client := testdb.NewTestClient(t)
	proposals := NewProposalService(client)
	svc := NewChangesetService(client, proposals)
	ctx := context.Background()

	p := createTestProposal(t, client, proposals, "acme", "conv-1", "docs/networking.md")
	_, err := proposals.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{Status: models.ProposalStatusApproved})
	require.NoError(t, err)

	batch, err := svc.CreateBatch(ctx, "acme", models.CreateBatchRequest{ProposalIDs: []int64{p.ID}})
	require.NoError(t, err)

	// Draft batches do not show in history.
	history, total, err := svc.History(ctx, "acme", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, history)

	submitted, err := svc.MarkSubmitted(ctx, batch.BatchID, models.GeneratePRRequest{
		PRTitle:     "docs: clarify RPC timeout configuration",
		PRBody:      "Generated from community chat.",
		SubmittedBy: "reviewer@acme.io",
	}, "https://github.com/acme/docs/pull/42", 42, "docpythia/batch-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.PRURL)
	assert.Equal(t, "https://github.com/acme/docs/pull/42", *submitted.PRURL)
	require.NotNil(t, submitted.PRNumber)
	assert.Equal(t, 42, *submitted.PRNumber)
	assert.NotNil(t, submitted.SubmittedAt)

	// A submitted batch cannot be submitted again.
	_, err = svc.MarkSubmitted(ctx, batch.BatchID, models.GeneratePRRequest{PRTitle: "again"}, "", 0, "")
	assert.ErrorIs(t, err, ErrBatchNotDraft)

	history, total, err = svc.History(ctx, "acme", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, history, 1)
	assert.Equal(t, batch.BatchID, history[0].BatchID)

	// PR merged: terminal transition.
	merged, err := svc.SetBatchStatus(ctx, batch.BatchID, models.BatchStatusMerged)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusMerged, merged.Status)

	_, err = svc.SetBatchStatus(ctx, batch.BatchID, models.BatchStatusDraft)
	assert.True(t, IsValidationError(err))
}

func TestChangesetService_TenantIsolation(t *testing.T) {
	client := testdb.NewTestClient(t)
	proposals := NewProposalService(client)
	svc := NewChangesetService(client, proposals)
	ctx := context.Background()

	p := createTestProposal(t, client, proposals, "other", "conv-1", "docs/a.md")
	_, err := proposals.SetProposalStatus(ctx, p.ID, models.SetProposalStatusRequest{Status: models.ProposalStatusApproved})
	require.NoError(t, err)

	// A tenant cannot batch another tenant's proposals.
	_, err = svc.CreateBatch(ctx, "acme", models.CreateBatchRequest{ProposalIDs: []int64{p.ID}})
	assert.True(t, IsValidationError(err))
}
