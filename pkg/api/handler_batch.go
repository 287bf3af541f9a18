package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// createBatch freezes the given approved proposals into a draft
// changeset batch.
func (s *Server) createBatch(c *gin.Context) {
	tenantID, ok := s.tenantID(c)
	if !ok {
		return
	}
	var req models.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.CreatedBy = reviewerIdentity(c, req.CreatedBy)

	batch, err := s.svcs.Changesets.CreateBatch(c.Request.Context(), tenantID, req)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusCreated, batch)
}

// getBatch returns one batch together with its frozen proposals.
func (s *Server) getBatch(c *gin.Context) {
	batchID := c.Param("id")
	batch, err := s.svcs.Changesets.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	proposals, err := s.svcs.Changesets.BatchProposals(c.Request.Context(), batchID)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"batch":     batch,
		"proposals": proposals,
	})
}

// generatePR hands a draft batch to the PR generator and marks it
// submitted. Without a configured generator the batch is submitted by
// record only; the external collaborator picks it up from the store.
func (s *Server) generatePR(c *gin.Context) {
	batchID := c.Param("id")
	var req models.GeneratePRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SubmittedBy = reviewerIdentity(c, req.SubmittedBy)

	var prURL, branchName string
	var prNumber int
	if s.prGen != nil {
		batch, err := s.svcs.Changesets.GetBatch(c.Request.Context(), batchID)
		if err != nil {
			mapServiceError(c, s.logger, err)
			return
		}
		proposals, err := s.svcs.Changesets.BatchProposals(c.Request.Context(), batchID)
		if err != nil {
			mapServiceError(c, s.logger, err)
			return
		}
		prURL, prNumber, branchName, err = s.prGen.GeneratePR(c.Request.Context(), batch, proposals, req)
		if err != nil {
			s.logger.Error("PR generation failed", "batch_id", batchID, "error", err)
			respondError(c, http.StatusBadGateway, "PR generation failed: "+err.Error())
			return
		}
	}

	batch, err := s.svcs.Changesets.MarkSubmitted(c.Request.Context(), batchID, req, prURL, prNumber, branchName)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, batch)
}

// batchHistory lists submitted, merged, and closed batches, newest
// first.
func (s *Server) batchHistory(c *gin.Context) {
	tenantID, ok := s.tenantID(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)

	batches, total, err := s.svcs.Changesets.History(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondPage(c, batches, limit, offset, total)
}
