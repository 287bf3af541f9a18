// DocPythia pipeline daemon: ingests community-chat streams, runs the
// batch analysis pipeline, and serves the review API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/api"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/cleanup"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/docindex"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/embedding"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/llm"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/netutil"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/processor"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/scheduler"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/services"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams/csvdrop"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams/slackstream"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams/telegram"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory before anything reads the
	// environment.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	slog.Info("Starting DocPythia",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"tenants", stats.Tenants,
		"llm_providers", stats.LLMProviders,
		"model_tiers", stats.ModelTiers)

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	if err := database.RunMigrations(ctx, dbClient.DB.DB, dbConfig.Database); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL, schema is current")

	// 3. Domain services
	messageSvc := services.NewMessageService(dbClient)
	watermarkSvc := services.NewWatermarkService(dbClient)
	classificationSvc := services.NewClassificationService(dbClient)
	ragContextSvc := services.NewRagContextService(dbClient)
	proposalSvc := services.NewProposalService(dbClient)
	rulesetSvc := services.NewRulesetService(dbClient)
	streamSvc := services.NewStreamService(dbClient)
	llmCacheSvc := services.NewLLMCacheService(dbClient)
	docIndexCacheSvc := services.NewDocIndexCacheService(dbClient)
	runLogSvc := services.NewRunLogService(dbClient)
	changesetSvc := services.NewChangesetService(dbClient, proposalSvc)
	conversationSvc := services.NewConversationService(dbClient, messageSvc, proposalSvc)
	warnings := services.NewSystemWarningsService()
	slog.Info("Services initialized")

	preferIPv4 := cfg.Network != nil && cfg.Network.PreferIPv4

	// 4. Embedding engine and vector store
	embedEngine, err := embedding.NewEngineWithClient(cfg.Embedding,
		netutil.NewHTTPClient(20*time.Second, preferIPv4))
	if err != nil {
		slog.Error("Failed to create embedding engine", "error", err)
		os.Exit(1)
	}
	vecStore := vectorstore.New(dbClient, embedEngine.Dimensions(), nil)
	for _, tenantID := range cfg.TenantRegistry.TenantIDs() {
		if err := vecStore.Load(ctx, tenantID); err != nil {
			slog.Error("Failed to load vector store", "tenant_id", tenantID, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Vector store loaded", "vectors", vecStore.Len())

	// 5. LLM gateway
	gateway, err := llm.NewGateway(cfg.LLMProviderRegistry, cfg.ModelTierRegistry,
		llm.WithCache(llmCacheSvc),
		llm.WithHTTPClient(netutil.NewHTTPClient(60*time.Second, preferIPv4)),
	)
	if err != nil {
		slog.Error("Failed to create LLM gateway", "error", err)
		os.Exit(1)
	}

	// 6. Batch processor with per-tenant documentation indexes
	proc := processor.New(processor.Deps{
		DB:              dbClient,
		Streams:         streamSvc,
		Messages:        messageSvc,
		Watermarks:      watermarkSvc,
		Classifications: classificationSvc,
		RagContexts:     ragContextSvc,
		Proposals:       proposalSvc,
		Rulesets:        rulesetSvc,
		RunLogs:         runLogSvc,
		Gateway:         gateway,
		Embedding:       embedEngine,
		VectorStore:     vecStore,
		Config:          cfg,
	})
	docEmbedder := docindex.NewEmbedder(embedEngine, vecStore, nil)
	for tenantID, tenant := range cfg.TenantRegistry.GetAll() {
		if tenant.Docs == nil || tenant.Docs.Source == nil {
			slog.Warn("Tenant has no documentation source, pipeline runs without an index",
				"tenant_id", tenantID)
			continue
		}
		source, err := docindex.NewSource(tenant.Docs)
		if err != nil {
			slog.Error("Failed to create doc source", "tenant_id", tenantID, "error", err)
			os.Exit(1)
		}
		docSvc := docindex.NewService(source, docIndexCacheSvc, tenant.Docs.Filter, nil)
		proc.RegisterIndexProvider(tenantID, docSvc)

		// Initial index build and embedding sync; later rebuilds happen
		// on the scheduler.
		result, err := docSvc.Sync(ctx)
		if err != nil {
			slog.Error("Initial documentation sync failed", "tenant_id", tenantID, "error", err)
			warnings.AddWarning("docindex", "initial documentation sync failed",
				err.Error(), tenantID)
			continue
		}
		embedded, err := docEmbedder.SyncIndex(ctx, tenantID, result.Index, result.Files)
		if err != nil {
			slog.Error("Documentation embedding failed", "tenant_id", tenantID, "error", err)
			warnings.AddWarning("docindex", "documentation embedding failed",
				err.Error(), tenantID)
			continue
		}
		slog.Info("Documentation index ready",
			"tenant_id", tenantID, "pages", len(result.Index.Pages), "embedded", embedded)
	}

	// 7. Stream adapters
	env := &streams.Env{
		Messages:   messageSvc,
		Watermarks: watermarkSvc,
		Warnings:   warnings,
		HTTPClient: netutil.NewHTTPClient(30*time.Second, preferIPv4),
	}
	manager := streams.NewManager(env, streamSvc, cfg.Pipeline)
	manager.RegisterFactory(models.AdapterCSVDrop, csvdrop.New)
	manager.RegisterFactory(models.AdapterSlack, slackstream.New)
	manager.RegisterFactory(models.AdapterTelegram, telegram.New)
	if err := manager.LoadStreams(ctx); err != nil {
		slog.Error("Failed to load streams", "error", err)
		os.Exit(1)
	}

	// 8. Scheduler: batch tick, per-stream pollers
	sched := scheduler.New(nil)
	if err := sched.AddJob("batch-tick", cfg.Scheduling.BatchTickCron, func(jobCtx context.Context) {
		if err := proc.Tick(jobCtx); err != nil {
			slog.Error("Batch tick failed", "error", err)
		}
	}); err != nil {
		slog.Error("Failed to schedule batch tick", "error", err)
		os.Exit(1)
	}
	if cfg.Scheduling.StreamSchedulingEnabled {
		for _, sc := range manager.ScheduledStreams() {
			streamID := sc.StreamID
			name := fmt.Sprintf("stream:%s", streamID)
			if err := sched.AddJob(name, *sc.Schedule, func(jobCtx context.Context) {
				if _, err := manager.RunOnce(jobCtx, streamID); err != nil {
					slog.Error("Scheduled stream run failed", "stream_id", streamID, "error", err)
				}
			}); err != nil {
				slog.Error("Failed to schedule stream", "stream_id", streamID, "error", err)
				warnings.AddWarning("scheduler", "invalid stream schedule", err.Error(), streamID)
			}
		}
	}
	sched.Start()
	slog.Info("Scheduler started", "jobs", sched.JobNames())

	// 9. Retention sweeps
	cleaner := cleanup.NewService(cfg.Retention, llmCacheSvc, runLogSvc,
		docIndexCacheSvc, messageSvc, nil)
	cleaner.Start(ctx)

	// 10. Review API
	server := api.NewServer(dbClient, api.Services{
		Conversations: conversationSvc,
		Proposals:     proposalSvc,
		Changesets:    changesetSvc,
		Rulesets:      rulesetSvc,
		LLMCache:      llmCacheSvc,
		Warnings:      warnings,
	}, manager, cfg.TenantRegistry, cfg.Server, nil, nil)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	// Wait for shutdown signal or server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			slog.Error("API server failed", "error", err)
		}
	}

	// Staged shutdown: stop taking work, drain, then close stores.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		slog.Warn("Scheduler did not stop cleanly", "error", err)
	}
	manager.Shutdown(shutdownCtx)
	cleaner.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API server did not stop cleanly", "error", err)
	}

	slog.Info("DocPythia stopped")
}
