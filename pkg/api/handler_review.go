package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// listConversations returns conversations with their proposals,
// optionally filtered by computed status.
func (s *Server) listConversations(c *gin.Context) {
	tenantID, ok := s.tenantID(c)
	if !ok {
		return
	}

	var status models.ConversationStatus
	if v := c.Query("status"); v != "" {
		status = models.ConversationStatus(v)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status: "+v)
			return
		}
	}
	limit, offset := pageParams(c)

	views, total, err := s.svcs.Conversations.ListConversations(c.Request.Context(), tenantID, status, limit, offset)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondPage(c, views, limit, offset, total)
}

func (s *Server) getConversation(c *gin.Context) {
	tenantID, ok := s.tenantID(c)
	if !ok {
		return
	}
	view, err := s.svcs.Conversations.GetConversation(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, view)
}

func (s *Server) listProposals(c *gin.Context) {
	tenantID, ok := s.tenantID(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	filters := models.ProposalFilters{
		TenantID:       tenantID,
		Status:         models.ProposalStatus(c.Query("status")),
		ConversationID: c.Query("conversation_id"),
		Page:           c.Query("page"),
		BatchID:        c.Query("batch_id"),
		Unbatched:      c.Query("unbatched") == "true",
		Limit:          limit,
		Offset:         offset,
	}

	proposals, total, err := s.svcs.Proposals.ListProposals(c.Request.Context(), filters)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondPage(c, proposals, limit, offset, total)
}

func (s *Server) getProposal(c *gin.Context) {
	id, err := proposalID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid proposal id")
		return
	}
	proposal, err := s.svcs.Proposals.GetProposal(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, proposal)
}

// updateProposalText edits the suggested text of a pending proposal.
// Proposals frozen by a changeset batch reject the edit with E_FROZEN.
func (s *Server) updateProposalText(c *gin.Context) {
	id, err := proposalID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid proposal id")
		return
	}
	var req models.UpdateProposalTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.EditedBy = reviewerIdentity(c, req.EditedBy)

	proposal, err := s.svcs.Proposals.UpdateProposalText(c.Request.Context(), id, req)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, proposal)
}

// setProposalStatus transitions a proposal between pending, approved,
// and ignored. The transition is idempotent.
func (s *Server) setProposalStatus(c *gin.Context) {
	id, err := proposalID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid proposal id")
		return
	}
	var req models.SetProposalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.Status.IsValid() {
		respondError(c, http.StatusBadRequest, "invalid status: "+string(req.Status))
		return
	}
	req.ReviewedBy = reviewerIdentity(c, req.ReviewedBy)

	proposal, err := s.svcs.Proposals.SetProposalStatus(c.Request.Context(), id, req)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, proposal)
}

func proposalID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
