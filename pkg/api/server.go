// Package api exposes the review HTTP surface: conversations with
// their proposals, proposal editing and status transitions, changeset
// batches, tenant rulesets, LLM-cache search, and operator stream
// status. JSON in/out, everything under /api/v1.
package api

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/metrics"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams"
)

// PRGenerator turns a draft batch into a git branch and draft pull
// request. The concrete implementation lives outside this module; a
// nil generator means the batch is handed off by record only.
type PRGenerator interface {
	GeneratePR(ctx context.Context, batch *models.ChangesetBatch, proposals []*models.DocProposal, req models.GeneratePRRequest) (prURL string, prNumber int, branchName string, err error)
}

// Services bundles everything the handlers call.
type Services struct {
	Conversations *services.ConversationService
	Proposals     *services.ProposalService
	Changesets    *services.ChangesetService
	Rulesets      *services.RulesetService
	LLMCache      *services.LLMCacheService
	Warnings      *services.SystemWarningsService
}

// Server is the review API server.
type Server struct {
	db       *database.Client
	svcs     Services
	manager  *streams.Manager
	tenants  *config.TenantRegistry
	cfg      *config.ServerConfig
	prGen    PRGenerator
	logger   *slog.Logger
	engine   *gin.Engine
	httpSrv  *http.Server
	startedAt time.Time
}

// NewServer wires the routes. manager and prGen may be nil: stream
// endpoints then report 503, and generate-pr submits without PR
// coordinates.
func NewServer(db *database.Client, svcs Services, manager *streams.Manager, tenants *config.TenantRegistry, cfg *config.ServerConfig, prGen PRGenerator, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:        db,
		svcs:      svcs,
		manager:   manager,
		tenants:   tenants,
		cfg:       cfg,
		prGen:     prGen,
		logger:    logger.With("component", "api"),
		startedAt: time.Now().UTC(),
	}
	s.engine = s.buildRouter()
	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(securityHeaders())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	admin := v1.Group("", adminAuth(s.cfg.AdminTokenEnv))

	v1.GET("/conversations", s.listConversations)
	v1.GET("/conversations/:id", s.getConversation)
	v1.GET("/proposals", s.listProposals)
	v1.GET("/proposals/:id", s.getProposal)
	admin.PATCH("/proposals/:id", s.updateProposalText)
	admin.POST("/proposals/:id/status", s.setProposalStatus)

	admin.POST("/batches", s.createBatch)
	v1.GET("/batches/history", s.batchHistory)
	v1.GET("/batches/:id", s.getBatch)
	admin.POST("/batches/:id/generate-pr", s.generatePR)

	v1.GET("/rulesets/:tenant_id", s.getRuleset)
	admin.PUT("/rulesets/:tenant_id", s.putRuleset)

	v1.GET("/llm-cache", s.searchLLMCache)

	v1.GET("/streams", s.listStreams)
	admin.POST("/streams/:id/run", s.runStream)
	admin.POST("/streams/:id/webhook", s.streamWebhook)

	v1.GET("/warnings", s.listWarnings)

	return r
}

// Run starts the listener and blocks until the server stops.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Review API listening", "addr", s.cfg.ListenAddr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB.DB)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	body := gin.H{
		"status":         "healthy",
		"database":       dbHealth,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.manager != nil {
		body["streams"] = len(s.manager.Statuses())
	}
	c.JSON(http.StatusOK, body)
}

// tenantID resolves the tenant for a request: explicit ?tenant_id=
// wins; a single-tenant deployment needs no parameter.
func (s *Server) tenantID(c *gin.Context) (string, bool) {
	id := c.Query("tenant_id")
	if id != "" {
		if s.tenants != nil && !s.tenants.Has(id) {
			respondError(c, http.StatusNotFound, "unknown tenant: "+id)
			return "", false
		}
		return id, true
	}
	if s.tenants != nil && s.tenants.Len() == 1 {
		return s.tenants.TenantIDs()[0], true
	}
	respondError(c, http.StatusBadRequest, "tenant_id query parameter is required")
	return "", false
}
