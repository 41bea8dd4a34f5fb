// cmd/sql-agent-worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sql-agent-workers/internal/catalog"
	"sql-agent-workers/internal/common/camunda"
	"sql-agent-workers/internal/common/config"
	"sql-agent-workers/internal/common/database"
	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/common/observability"
	"sql-agent-workers/internal/discrepancy"
	"sql-agent-workers/internal/orchestrator"
	"sql-agent-workers/internal/planner"
	"sql-agent-workers/internal/query"
	"sql-agent-workers/internal/schema"
	answerrequest "sql-agent-workers/internal/workers/sql-agent/answer-request"
	refreshschemacache "sql-agent-workers/internal/workers/sql-agent/refresh-schema-cache"
)

var postgresRetry = &camunda.RetryConfig{
	MaxRetries: 14,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New("info", "console")
		bootstrap.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, logger.WithService(cfg.App.Name))
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sql agent worker...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, cfg.Observability.JaegerEndpoint, log)
	defer obs.Shutdown()

	// --- Data source ---
	db, err := database.OpenPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres open failed", zap.Error(err))
	}
	defer db.Close()

	if err := camunda.Retry(ctx, postgresRetry, "PostgreSQL connection", log, db.PingContext); err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	source := catalog.NewSQLSource(db)
	cache := catalog.NewCache(source, log)
	if err := cache.Refresh(ctx); err != nil {
		zapLog.Warn("starting with an empty schema catalog", zap.Error(err))
	}

	// --- Archive ---
	store, closeStore, err := buildArchive(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("archive init failed", zap.Error(err), zap.String("backend", cfg.Archive.Backend))
	}
	defer closeStore()

	// --- LLM ---
	completer, err := buildCompleter(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("llm client init failed", zap.Error(err), zap.String("provider", cfg.LLM.Provider))
	}

	// --- Discrepancy rules ---
	registry := discrepancy.NewRegistry()
	if err := loadRules(cfg.Rules.Path, registry, log); err != nil {
		zapLog.Fatal("rule book load failed", zap.Error(err), zap.String("path", cfg.Rules.Path))
	}

	engineOpts := []discrepancy.Option{
		discrepancy.WithArchive(store),
		discrepancy.WithTimeouts(config.GetDuration(cfg.LLM.GenAI.Timeout), config.GetDuration(cfg.Pipeline.StageTimeout)),
	}
	if analyzer := buildAnalyzer(cfg, completer, log); analyzer != nil {
		engineOpts = append(engineOpts, discrepancy.WithAnalyzer(analyzer))
	}
	engine := discrepancy.NewEngine(registry, source, log, engineOpts...)

	// --- Pipeline ---
	agent := query.NewAgent(newSQLWriter(completer), db, store, query.Config{
		MaxRows:      cfg.Pipeline.MaxRows,
		ExampleCount: cfg.Pipeline.ExampleCount,
	}, log)

	pipelineOpts := []orchestrator.Option{
		orchestrator.WithArchive(store),
		orchestrator.WithTracer(obs.Tracer()),
		orchestrator.WithRunRecorder(obs),
		orchestrator.WithStageTimeout(config.GetDuration(cfg.Pipeline.StageTimeout)),
	}
	alerter, err := buildAlerter(ctx, cfg, log)
	if err != nil {
		zapLog.Warn("discrepancy alerts disabled", zap.Error(err))
	} else if alerter != nil {
		pipelineOpts = append(pipelineOpts, orchestrator.WithAlerter(alerter))
	}

	pipeline := orchestrator.New(
		planner.NewBuilder(log),
		schema.NewResolver(cache, store, log),
		agent,
		engine,
		log,
		pipelineOpts...,
	)

	// --- Zeebe ---
	zeebe, err := camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	var workers []*camunda.Worker
	{
		taskType := answerrequest.TaskType
		wcfg := config.GetWorkerConfig(cfg, taskType)
		hcfg := answerrequest.LoadConfig()
		if wcfg.Timeout > 0 {
			hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		handler := answerrequest.NewHandler(hcfg, pipeline, log)
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), taskType, wcfg, handler.Handle, log))
	}
	{
		taskType := refreshschemacache.TaskType
		wcfg := config.GetWorkerConfig(cfg, taskType)
		hcfg := refreshschemacache.LoadConfig()
		if wcfg.Timeout > 0 {
			hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		handler := refreshschemacache.NewHandler(hcfg, cache, log)
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), taskType, wcfg, handler.Handle, log))
	}

	// --- Health & Metrics Server ---
	srv := &http.Server{
		Addr: cfg.Observability.MetricsAddr,
		Handler: newHealthMux(map[string]healthCheck{
			"postgres": db.PingContext,
			"zeebe":    zeebe.HealthCheck,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("SQL agent worker stopped gracefully")
}
