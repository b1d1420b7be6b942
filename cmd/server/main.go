package main

import (
	"context"
	"log"
	"time"

	"auditlens/internal/adapter/api"
	"auditlens/internal/adapter/client"
	"auditlens/internal/adapter/store"
	"auditlens/internal/config"
	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"
	"auditlens/internal/logger"
	"auditlens/internal/metrics"
	"auditlens/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Redis for token quotas, pseudonym mappings and the intent cache
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	// Postgres holds the findings; without it the service runs on an empty in-memory store
	var records repository.RecordStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			zl.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		records = store.NewPostgresRecordStore(pool)
	} else {
		zl.Warn("DATABASE_URL not set, using in-memory record store")
		records = store.NewMemoryRecordStore(nil)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Gemini.ProjectID,
		Location: cfg.Gemini.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		zl.Fatal("failed to init genai client", zap.Error(err))
	}

	primaryModel := client.NewGeminiClientFromClient(genaiClient, cfg.Gemini.PrimaryModel)
	var fallbackModel repository.AIProvider
	if cfg.Gemini.FallbackModel != "" && cfg.Gemini.FallbackModel != cfg.Gemini.PrimaryModel {
		fallbackModel = client.NewGeminiClientFromClient(genaiClient, cfg.Gemini.FallbackModel)
	}
	resilientProvider := usecase.NewResilientProvider(primaryModel, fallbackModel, m, zl)

	embedder := client.NewEmbedderFromClient(genaiClient, cfg.Gemini.EmbeddingModel, int32(cfg.Qdrant.VectorSize))
	extractor := client.NewGeminiExtractor(genaiClient, cfg.Gemini.IntentModel)

	// Qdrant for semantic ranking of findings
	var index repository.SemanticIndex
	qClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		zl.Warn("qdrant unavailable, semantic ranking disabled", zap.Error(err))
	} else {
		vectorStore := store.NewQdrantStore(qClient, embedder, cfg.Qdrant.Collection, zl)
		if err := vectorStore.InitCollection(ctx, cfg.Qdrant.VectorSize); err != nil {
			zl.Warn("failed to init qdrant collection, semantic ranking disabled", zap.Error(err))
		} else {
			index = vectorStore
		}
	}

	masker := usecase.NewMasker()

	// Without Redis: in-process intent cache, local masking, no quotas
	var (
		intentCache   repository.IntentCache
		pseudonymizer repository.Pseudonymizer
		tokenLimiter  repository.TokenLimiter
	)
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zl.Warn("redis unavailable, running without quotas and remote pseudonymization", zap.Error(err))
		intentCache = store.NewMemoryIntentCache(10_000, cfg.IntentCacheTTL)
	} else {
		intentCache = store.NewRedisIntentCache(rdb, zl)
		pseudonymizer = store.NewRedisPseudonymizer(rdb, cfg.PseudonymRetention)
		tokenLimiter = store.NewRedisLimiter(rdb, cfg.UserTokenLimit, 24*time.Hour)
	}
	cancelPing()

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Store:     records,
		Intents:   usecase.NewIntentRecognizer(extractor, intentCache, cfg.IntentCacheTTL, zl),
		Builder:   usecase.NewContextBuilder(index, m, zl),
		AI:        resilientProvider,
		Privacy:   usecase.NewPrivacyGuard(pseudonymizer, masker, m, zl),
		Masker:    masker,
		Limiter:   tokenLimiter,
		Formatter: usecase.NewResponseFormatter(zl),
		Metrics:   m,
		Log:       zl,
	}, usecase.RouterConfig{
		Context: usecase.ContextOptions{
			MaxResults: cfg.Context.MaxResults,
			MaxTokens:  cfg.Context.MaxTokens,
			Strategy:   entity.ContextStrategy(cfg.Context.Strategy),
		},
		CandidateLimit: cfg.Context.CandidateLimit,
		PageSize:       cfg.Context.PageSize,
	})
	indexer := usecase.NewFindingIndexer(records, index, masker, zl)

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := embedder.CreateEmbedding(warmCtx, "warmup"); err != nil {
			zl.Warn("embedder warm-up failed", zap.Error(err))
		}
		_, err := resilientProvider.Complete(warmCtx, entity.CompletionRequest{Prompt: ".", ThinkingEffort: entity.ThinkingNone})
		if err != nil {
			zl.Warn("gemini warm-up failed", zap.Error(err))
		}
		zl.Info("pre-warm complete")
	}()

	app := fiber.New(fiber.Config{
		AppName: "AuditLens Query Service",
	})

	handler := api.NewQueryHandler(orchestrator, indexer, cfg.QueryTimeout, zl)
	api.SetupRouter(app, handler, reg, api.RouterInfo{Version: cfg.Version, Env: cfg.Env})

	zl.Info("auditlens query service running", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
