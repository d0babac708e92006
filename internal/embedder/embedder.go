// Package embedder converts text to fixed-length vectors through an
// OpenAI-compatible embeddings API.
package embedder

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/arkivo-ai/docchat/internal/provider"
	"github.com/arkivo-ai/docchat/pkg/logger"
	"github.com/arkivo-ai/docchat/pkg/retry"
)

// Cache caches embeddings keyed by model and text. Implementations must be
// safe for concurrent use; a nil Cache disables caching.
type Cache interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, bool)
	SetEmbedding(ctx context.Context, model, text string, embedding []float32)
}

// Config holds configuration for the embedding client.
type Config struct {
	APIKey         string
	BaseURL        string // optional, for OpenAI-compatible servers
	Model          string
	MaxBatchSize   int // max inputs per API request
	RateLimitRPS   int
	RequestTimeout time.Duration
	Retry          retry.Policy
}

// DefaultConfig returns the default embedding configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		Model:          "text-embedding-3-small",
		MaxBatchSize:   100,
		RateLimitRPS:   50,
		RequestTimeout: 30 * time.Second,
		Retry:          retry.Default(),
	}
}

type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client generates embeddings with rate limiting, retries and an optional
// cache in front of the API.
type Client struct {
	api     embeddingsAPI
	cfg     Config
	limiter *rate.Limiter
	cache   Cache
	log     *logger.Logger
}

// New creates an embedding client. cache may be nil.
func New(cfg Config, cache Cache, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = provider.IsTransientOpenAI
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:     openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitRPS),
		cache:   cache,
		log:     log.WithComponent("embedder"),
	}, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Dimension returns the vector length produced by the configured model.
func (c *Client) Dimension() int {
	switch c.cfg.Model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, preserving order. There is no
// partial-success mode: if any request fails after retries, the whole batch
// fails.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	results := make([][]float32, len(texts))

	pending := make([]string, 0, len(texts))
	pendingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if c.cache != nil {
			if emb, ok := c.cache.GetEmbedding(ctx, c.cfg.Model, text); ok {
				results[i] = emb
				continue
			}
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	for lo := 0; lo < len(pending); lo += c.cfg.MaxBatchSize {
		hi := lo + c.cfg.MaxBatchSize
		if hi > len(pending) {
			hi = len(pending)
		}

		batch := pending[lo:hi]
		vectors, err := c.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch embedding failed: %w", err)
		}

		for j, emb := range vectors {
			results[pendingIdx[lo+j]] = emb
			if c.cache != nil {
				c.cache.SetEmbedding(ctx, c.cfg.Model, batch[j], emb)
			}
		}
	}

	c.log.Debug("batch embedding complete",
		"total", len(texts),
		"from_cache", len(texts)-len(pending),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		reqCtx := ctx
		if c.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
			defer cancel()
		}

		resp, err := c.api.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.cfg.Model),
		})
		if err != nil {
			c.log.Warn("embedding request failed", "count", len(texts), "error", err)
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, provider.WrapOpenAI("embed", err)
	}
	return vectors, nil
}
