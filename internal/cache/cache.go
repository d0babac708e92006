// Package cache provides an optional Redis-backed cache for embeddings.
// Cache failures degrade gracefully: the caller always gets an answer, it
// just costs a provider call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds cache configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// DefaultConfig returns defaults for the embedding cache.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:   addr,
		Prefix: "docchat",
		TTL:    time.Hour,
	}
}

// EmbeddingCache caches embeddings keyed by model and text.
type EmbeddingCache struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// New connects to Redis and returns an EmbeddingCache. The connection is
// verified up front so a misconfigured cache fails at startup, not mid-request.
func New(cfg Config, logger *slog.Logger) (*EmbeddingCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "docchat"
	}

	return &EmbeddingCache{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "embedding_cache"),
	}, nil
}

// GetEmbedding returns a cached embedding and whether it was found.
func (c *EmbeddingCache) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool) {
	val, err := c.client.Get(ctx, c.key(model, text)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "error", err)
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal([]byte(val), &embedding); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "error", err)
		return nil, false
	}
	return embedding, true
}

// SetEmbedding stores an embedding; failures are logged and ignored.
func (c *EmbeddingCache) SetEmbedding(ctx context.Context, model, text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(model, text), data, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("cache set failed", "error", err)
	}
}

// Health checks Redis connectivity.
func (c *EmbeddingCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (c *EmbeddingCache) Close() error {
	return c.client.Close()
}

func (c *EmbeddingCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "|" + text))
	return c.cfg.Prefix + ":emb:" + hex.EncodeToString(sum[:])
}
