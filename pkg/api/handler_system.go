package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getRuleset(c *gin.Context) {
	ruleset, err := s.svcs.Rulesets.GetRuleset(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, ruleset)
}

type putRulesetRequest struct {
	ContentMarkdown string `json:"content_markdown"`
}

func (s *Server) putRuleset(c *gin.Context) {
	var req putRulesetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ruleset, err := s.svcs.Rulesets.PutRuleset(c.Request.Context(), c.Param("tenant_id"), req.ContentMarkdown)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, ruleset)
}

// searchLLMCache text-matches prompts and responses and returns all
// cache entries of every matched message, grouped by message.
func (s *Server) searchLLMCache(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		respondError(c, http.StatusBadRequest, "query parameter is required")
		return
	}
	limit, _ := pageParams(c)

	groups, err := s.svcs.LLMCache.SearchWithRelated(c.Request.Context(), query, limit)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, groups)
}

// listStreams reports per-adapter runtime health.
func (s *Server) listStreams(c *gin.Context) {
	if s.manager == nil {
		respondError(c, http.StatusServiceUnavailable, "stream manager is not running")
		return
	}
	respondData(c, http.StatusOK, s.manager.Statuses())
}

// runStream triggers one import pass out of schedule.
func (s *Server) runStream(c *gin.Context) {
	if s.manager == nil {
		respondError(c, http.StatusServiceUnavailable, "stream manager is not running")
		return
	}
	imported, err := s.manager.RunOnce(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"imported": imported})
}

// streamWebhook forwards a pushed payload to the stream's adapter.
func (s *Server) streamWebhook(c *gin.Context) {
	if s.manager == nil {
		respondError(c, http.StatusServiceUnavailable, "stream manager is not running")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		respondError(c, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	imported, err := s.manager.HandleWebhook(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		mapServiceError(c, s.logger, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"imported": imported})
}

func (s *Server) listWarnings(c *gin.Context) {
	if s.svcs.Warnings == nil {
		respondData(c, http.StatusOK, []any{})
		return
	}
	respondData(c, http.StatusOK, s.svcs.Warnings.GetWarnings())
}
