// Package main is the entry point for the docchat API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/arkivo-ai/docchat/internal/api"
	"github.com/arkivo-ai/docchat/internal/api/handlers"
	"github.com/arkivo-ai/docchat/internal/cache"
	"github.com/arkivo-ai/docchat/internal/chunker"
	"github.com/arkivo-ai/docchat/internal/config"
	"github.com/arkivo-ai/docchat/internal/embedder"
	"github.com/arkivo-ai/docchat/internal/llm"
	"github.com/arkivo-ai/docchat/internal/objectstore"
	"github.com/arkivo-ai/docchat/internal/rag"
	"github.com/arkivo-ai/docchat/internal/store"
	"github.com/arkivo-ai/docchat/internal/vectorstore"
	vectormemory "github.com/arkivo-ai/docchat/internal/vectorstore/memory"
	"github.com/arkivo-ai/docchat/internal/vectorstore/pinecone"
	"github.com/arkivo-ai/docchat/pkg/logger"
	"github.com/arkivo-ai/docchat/pkg/retry"
	"github.com/arkivo-ai/docchat/pkg/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	log.SetDefault()

	log.Info("starting docchat",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
	)

	shutdownHandler := shutdown.New(log.Logger, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)

	// Document/message store
	var docStore store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgresStore(store.PostgresConfig{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)
		docStore = pg
	default:
		log.Info("using in-memory document store")
		docStore = store.NewMemoryStore()
	}
	shutdownHandler.RegisterNamed("store", func(ctx context.Context) error {
		return docStore.Close()
	})

	// Vector index: Pinecone when configured, in-memory otherwise.
	var index vectorstore.Index
	if cfg.Pinecone.APIKey != "" && cfg.Pinecone.IndexHost != "" {
		pc, err := pinecone.New(pinecone.Config{
			APIKey:    cfg.Pinecone.APIKey,
			IndexHost: cfg.Pinecone.IndexHost,
			Namespace: cfg.Pinecone.Namespace,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create pinecone client: %w", err)
		}
		log.Info("using pinecone vector index", "host", cfg.Pinecone.IndexHost)
		index = pc
	} else {
		log.Warn("pinecone not configured, using in-memory vector index")
		index = vectormemory.New()
	}

	// Optional Redis embedding cache.
	var embCache embedder.Cache
	if cfg.Redis.Host != "" {
		redisCache, err := cache.New(cache.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "docchat",
			TTL:      time.Hour,
		}, log.Logger)
		if err != nil {
			log.Warn("failed to connect to redis, embedding cache disabled", "error", err)
		} else {
			log.Info("embedding cache enabled", "addr", cfg.Redis.Host)
			embCache = redisCache
			shutdownHandler.RegisterNamed("redis", func(ctx context.Context) error {
				return redisCache.Close()
			})
		}
	}

	embedClient, err := embedder.New(embedder.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.EmbeddingModel,
		MaxBatchSize:   100,
		RateLimitRPS:   cfg.OpenAI.RateLimitRPS,
		RequestTimeout: time.Duration(cfg.OpenAI.RequestTimeout) * time.Second,
		Retry:          retry.Default(),
	}, embCache, log)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	log.Info("embedding client ready",
		"model", embedClient.Model(),
		"dimension", embedClient.Dimension(),
	)

	llmClient, err := llm.New(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.ChatModel,
		MaxTokens:      cfg.OpenAI.MaxTokens,
		Temperature:    cfg.OpenAI.Temperature,
		RequestTimeout: time.Duration(cfg.OpenAI.RequestTimeout) * time.Second,
		Retry:          retry.Default(),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	// Optional MinIO archival of original PDFs.
	var archiver rag.Archiver
	var objHealth handlers.HealthChecker
	if cfg.Storage.Endpoint != "" {
		objStore, err := objectstore.New(objectstore.Config{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			BucketName:      cfg.Storage.BucketName,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
		})
		if err != nil {
			log.Warn("failed to connect to object storage, pdf archival disabled", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := objStore.InitBucket(ctx); err != nil {
				log.Warn("failed to initialize storage bucket", "error", err)
			}
			cancel()
			log.Info("pdf archival enabled", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.BucketName)
			archiver = objStore
			objHealth = objStore
		}
	}

	var counter chunker.TokenCounter
	if tk, err := chunker.NewTiktokenCounter("cl100k_base"); err != nil {
		log.Warn("tiktoken unavailable, context budget uses all retrieved chunks", "error", err)
	} else {
		counter = tk
	}

	chunk, err := chunker.New(chunker.Config{
		Size:    cfg.RAG.ChunkSize,
		Overlap: cfg.RAG.ChunkOverlap,
	}, counter)
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}

	orch, err := rag.New(rag.Options{
		Chunker:   chunk,
		Embedder:  embedClient,
		Index:     index,
		Generator: llmClient,
		Store:     docStore,
		Archiver:  archiver,
		Counter:   counter,
		Config: rag.Config{
			TopK:             cfg.RAG.TopK,
			MinScore:         cfg.RAG.MinScore,
			MaxContextTokens: cfg.RAG.MaxContextTokens,
		},
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if cfg.RAG.ReconcileOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if result, err := orch.Reconcile(ctx); err != nil {
			log.Warn("startup reconcile failed", "error", err)
		} else {
			log.Info("startup reconcile complete",
				"checked", result.Checked,
				"removed", len(result.Removed),
			)
		}
		cancel()
	}

	deps := api.Dependencies{
		Logger:    log,
		Documents: orch,
		Answers:   answerService{orch},
		Reader:    docStore,
		HealthChecks: map[string]handlers.HealthChecker{
			"store":          docStore,
			"vector_index":   index,
			"object_storage": objHealth,
		},
	}

	routerConfig := api.DefaultRouterConfig()
	routerConfig.MaxUploadBytes = cfg.Server.MaxUploadBytes

	router := api.NewRouter(deps, routerConfig)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Server.Port
	server := api.NewServer(router, serverConfig, log)

	shutdownHandler.RegisterNamed("http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	shutdownHandler.Wait()

	log.Info("server stopped")
	return nil
}

// answerService bridges the orchestrator's concrete stream type to the
// handlers' interface.
type answerService struct {
	*rag.Orchestrator
}

func (a answerService) AnswerStream(ctx context.Context, documentID, question string) (handlers.AnswerStream, error) {
	return a.Orchestrator.AnswerStream(ctx, documentID, question)
}
