// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/clausewise/internal/config"
	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/core/answer"
	db "github.com/markdave123-py/clausewise/internal/core/database"
	"github.com/markdave123-py/clausewise/internal/core/ingestion_engine"
	"github.com/markdave123-py/clausewise/internal/core/llm"
	objectclient "github.com/markdave123-py/clausewise/internal/core/object-client"
	"github.com/markdave123-py/clausewise/internal/orchestrator"
	"github.com/markdave123-py/clausewise/internal/registry"
	"github.com/markdave123-py/clausewise/internal/services"
)

type App struct {
	Config       *config.Config
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	Documents    *services.DocumentService
	Ingestor     *ingestion_engine.DocumentIngestor
	Clauses      core.ClauseStore
	Storage      core.ObjectClient
	Server       *Server

	logger  *slog.Logger
	stop    context.CancelFunc
	closers []func() error
}

// NewApp connects the configured backends and wires every component. Backends without
// configuration fall back to in-process implementations.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.DatabaseURL != "" {
		store, err := db.NewPgClauseStore(initCtx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Clauses = store
		logger.Info("clause store ready", "backend", "postgres")
	} else {
		a.Clauses = db.NewMemoryClauseStore()
		logger.Info("clause store ready", "backend", "memory")
	}
	a.closers = append(a.closers, a.Clauses.Close)

	if cfg.UseS3() {
		s3c, err := objectclient.NewS3Client(initCtx, objectclient.S3Config{
			AccessKey: cfg.AwsAccessKey,
			SecretKey: cfg.AwsSecretKey,
			Region:    cfg.AwsRegion,
			Bucket:    cfg.BucketName,
			Prefix:    "documents",
		}, logger)
		if err != nil {
			return nil, err
		}
		a.Storage = s3c
		logger.Info("object storage ready", "backend", "s3", "bucket", cfg.BucketName)
	} else {
		a.Storage = objectclient.NewMemoryClient()
		logger.Info("object storage ready", "backend", "memory")
	}

	var (
		embedder core.EmbeddingProvider
		answerer core.Answerer
	)
	if cfg.UseGemini() {
		gemini, err := llm.NewGemini(initCtx, llm.GeminiConfig{
			APIKey:      cfg.AIAPIKey,
			GenModel:    cfg.GenModel,
			EmbedModel:  cfg.EmbedModel,
			Temperature: 0.2,
			JSONOutput:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize gemini: %w", err)
		}
		a.closers = append(a.closers, gemini.Close)

		embedder = gemini
		answerer = answer.NewRAGAnswerer(gemini, gemini, a.Clauses, 0, logger)
		logger.Info("answerer ready", "backend", "gemini", "model", cfg.GenModel)
	} else {
		answerer = answer.NewExtractiveAnswerer(a.Clauses, logger)
		logger.Info("answerer ready", "backend", "extractive")
	}

	policy, err := orchestrator.ParsePolicy(cfg.QueryPolicy)
	if err != nil {
		return nil, err
	}

	a.Registry = registry.New(logger)
	a.Orchestrator = orchestrator.New(a.Registry, answerer, orchestrator.Config{
		Timeout:        cfg.QueryTimeout,
		MaxQueryLength: cfg.MaxQueryLength,
		MaxSources:     cfg.MaxSources,
		Policy:         policy,
	}, logger)

	a.Ingestor = ingestion_engine.NewDocumentIngestor(
		a.Clauses,
		a.Storage,
		embedder,
		ingestion_engine.NewDocconvExtractor(false, 0),
		a.Registry,
		ingestion_engine.IngestConfig{
			Workers:       cfg.IngestWorkers,
			TargetTokens:  cfg.IngestTargetTokens,
			OverlapTokens: cfg.IngestOverlapTokens,
			BatchSize:     cfg.IngestBatchSize,
		},
		logger,
	)
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a.stop = stop
	a.Ingestor.Start(runCtx)

	a.Documents = services.NewDocumentService(a.Storage, a.Clauses, a.Registry, a.Orchestrator, a.Ingestor, cfg.MaxUploadBytes, logger)
	a.Server = NewServer(cfg, a, logger)

	ok = true
	return a, nil
}

// Close stops background work and releases backend connections.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	if a.stop != nil {
		a.stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close backend", "err", err)
		}
	}
	a.closers = nil
}
