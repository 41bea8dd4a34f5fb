package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"sql-agent-workers/internal/archive"
	"sql-agent-workers/internal/common/aws"
	"sql-agent-workers/internal/common/config"
	"sql-agent-workers/internal/common/database"
	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/discrepancy"
	"sql-agent-workers/internal/llm"
	"sql-agent-workers/internal/models"
	"sql-agent-workers/internal/notify"
	"sql-agent-workers/pkg/registry"
)

// buildArchive opens the configured archive backend. The returned close
// func is always safe to call.
func buildArchive(ctx context.Context, cfg *config.Config, log logger.Logger) (archive.Store, func(), error) {
	ttl := time.Duration(cfg.Archive.TTLSeconds) * time.Second
	noop := func() {}

	switch cfg.Archive.Backend {
	case config.ArchiveBackendRedis:
		rdb, err := database.OpenRedis(ctx, cfg.Database.Redis)
		if err != nil {
			return nil, noop, err
		}
		store := archive.NewRedisStore(rdb, cfg.Archive.KeyPrefix, ttl, cfg.Archive.MaxEntries, log)
		return store, func() { rdb.Close() }, nil

	case config.ArchiveBackendPostgres:
		pool, err := database.NewPgxPool(ctx, cfg.Database.Postgres)
		if err != nil {
			return nil, noop, err
		}
		store := archive.NewPostgresStore(pool, ttl, cfg.Archive.MaxEntries)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store, pool.Close, nil

	case config.ArchiveBackendElasticsearch:
		es, err := database.OpenElasticsearch(ctx, cfg.Database.Elasticsearch)
		if err != nil {
			return nil, noop, err
		}
		store := archive.NewElasticsearchStore(es, cfg.Archive.Index, ttl, cfg.Archive.MaxEntries)
		if err := store.EnsureIndex(ctx); err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	case config.ArchiveBackendMemory, "":
		return archive.NewMemoryStore(archive.MemoryOptions{
			TTL:             ttl,
			MaxEntries:      cfg.Archive.MaxEntries,
			PersistencePath: cfg.Archive.PersistencePath,
		}, log), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
}

func buildCompleter(ctx context.Context, cfg *config.Config, log logger.Logger) (llm.Completer, error) {
	switch cfg.LLM.Provider {
	case "bedrock":
		b := cfg.LLM.Bedrock
		runtime, err := aws.NewBedrockRuntime(ctx, b.Region)
		if err != nil {
			return nil, err
		}
		return llm.NewBedrockClient(runtime, llm.BedrockConfig{
			ModelID:     b.ModelID,
			MaxTokens:   b.MaxTokens,
			Temperature: b.Temperature,
		}, log), nil

	case "genai", "":
		g := cfg.LLM.GenAI
		return llm.NewGatewayClient(&llm.GatewayConfig{
			BaseURL:    g.BaseURL,
			APIKey:     g.APIKey,
			Model:      g.Model,
			Timeout:    config.GetDuration(g.Timeout),
			MaxRetries: g.MaxRetries,
		}, log), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func newSQLWriter(completer llm.Completer) *llm.SQLWriter {
	return llm.NewSQLWriter(completer, "")
}

func buildAnalyzer(cfg *config.Config, completer llm.Completer, log logger.Logger) *llm.Analyzer {
	if !cfg.LLM.EnableAnalyzer {
		return nil
	}
	return llm.NewAnalyzer(completer, cfg.Pipeline.AnalyzerSampleSize, log)
}

// buildAlerter returns nil when no notification channel is enabled.
func buildAlerter(ctx context.Context, cfg *config.Config, log logger.Logger) (*notify.Alerter, error) {
	n := cfg.Notifications
	if !n.SNS.Enabled && !n.SES.Enabled {
		return nil, nil
	}

	var (
		publisher notify.Publisher
		mailer    notify.Mailer
	)
	if n.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, n.AWS.Region)
		if err != nil {
			return nil, err
		}
		publisher = sns
	}
	if n.SES.Enabled {
		ses, err := aws.NewSESClient(ctx, n.AWS.Region)
		if err != nil {
			return nil, err
		}
		mailer = ses
	}

	return notify.NewAlerter(notify.Config{
		MinSeverity: models.Severity(n.MinSeverity),
		TopicARN:    n.SNS.TopicARN,
		FromEmail:   n.SES.FromEmail,
		To:          n.SES.To,
	}, publisher, mailer, log), nil
}

// loadRules installs the rule book's business rules. A missing file is not an
// error; the null and duplicate checks still run.
func loadRules(path string, reg *discrepancy.Registry, log logger.Logger) error {
	book, err := registry.LoadRuleBook(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("rule book not found, no business rules registered", map[string]interface{}{"path": path})
		return nil
	}
	if err != nil {
		return err
	}
	if err := reg.SetBusinessRules(discrepancy.FromDefinitions(book.Rules)); err != nil {
		return err
	}
	log.Info("rule book loaded", map[string]interface{}{
		"path":    path,
		"version": book.Version,
		"rules":   reg.Len(),
	})
	return nil
}
