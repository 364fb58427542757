package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lexigraph/case-assistant/internal/chunking"
	"github.com/lexigraph/case-assistant/internal/config"
	"github.com/lexigraph/case-assistant/internal/core/usecase"
	"github.com/lexigraph/case-assistant/internal/infrastructure/cache/natskv"
	"github.com/lexigraph/case-assistant/internal/infrastructure/extractor"
	"github.com/lexigraph/case-assistant/internal/infrastructure/llm/ollama"
	"github.com/lexigraph/case-assistant/internal/infrastructure/queue/nats"
	"github.com/lexigraph/case-assistant/internal/infrastructure/repository/postgres"
	"github.com/lexigraph/case-assistant/internal/infrastructure/rerank"
	"github.com/lexigraph/case-assistant/internal/infrastructure/resilience"
	"github.com/lexigraph/case-assistant/internal/infrastructure/storage/localfs"
	"github.com/lexigraph/case-assistant/internal/infrastructure/vector/qdrant"
	"github.com/lexigraph/case-assistant/internal/keyword"
)

type App struct {
	Config config.Config

	DB          *sql.DB
	Queue       *nats.Queue
	Repo        *postgres.DocumentRepository
	Rerank      *rerank.Client
	Coordinator *usecase.BatchCoordinator
	IngestUC    *usecase.IngestDocumentUseCase
	ProcessUC   *usecase.ProcessDocumentUseCase
	QueryUC     *usecase.QueryUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	keywordTTL := time.Duration(cfg.KeywordCacheTTLSec) * time.Second
	keywordStore, err := natskv.New(queue.Conn(), cfg.KeywordCacheBucket, keywordTTL)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init keyword cache: %w", err)
	}
	keywordCache := keyword.NewCache(keywordStore, keywordTTL)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutor(executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL)
	reranker := rerank.New(cfg.RerankURL)

	packer := chunking.NewPacker(cfg.ChunkSize, cfg.ChunkOverlap)
	coordinator := usecase.NewBatchCoordinator(embedder, vectorDB, cfg.EmbedBatchSize, cfg.EmbedParallelism)
	segments := extractor.NewDispatcher(storage)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, segments, packer, vectorDB, coordinator)
	queryUC := usecase.NewQueryUseCase(embedder, vectorDB, generator, reranker, keywordCache, usecase.QueryConfig{
		ShortQueryWords:   cfg.ShortQueryWords,
		VectorTopK:        cfg.VectorTopK,
		FastPathChunks:    cfg.FastPathChunks,
		KeywordTopK:       cfg.KeywordTopK,
		FusedCandidates:   cfg.FusedCandidates,
		RerankTopN:        cfg.RerankTopN,
		FusionRRFK:        cfg.FusionRRFK,
		SlamDunkThreshold: cfg.SlamDunkThreshold,
		MissThreshold:     cfg.MissThreshold,
	})

	return &App{
		Config: cfg,

		DB:          db,
		Queue:       queue,
		Repo:        repo,
		Rerank:      reranker,
		Coordinator: coordinator,
		IngestUC:    ingestUC,
		ProcessUC:   processUC,
		QueryUC:     queryUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
