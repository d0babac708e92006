// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	OpenAI   OpenAIConfig
	Pinecone PineconeConfig
	RAG      RAGConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Environment     string
	ShutdownTimeout int // seconds
	MaxUploadBytes  int64
}

// OpenAIConfig holds embedding and generation provider configuration.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // optional, for OpenAI-compatible servers
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
	RateLimitRPS   int
	RequestTimeout int // seconds
}

// PineconeConfig holds vector index configuration.
type PineconeConfig struct {
	APIKey    string
	IndexHost string
	Namespace string
}

// RAGConfig holds retrieval pipeline configuration.
type RAGConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MinScore         float64 // 0 disables score filtering
	MaxContextTokens int
	// ReconcileOnStart runs an orphaned-vector collection pass at startup.
	ReconcileOnStart bool
}

// StoreConfig selects the document/message store backend.
type StoreConfig struct {
	Driver string // "memory" or "postgres"
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds the optional embedding-cache configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds optional object storage configuration for
// archiving uploaded PDFs.
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 30),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			ChatModel:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxTokens:      getEnvAsInt("CHAT_MAX_TOKENS", 1024),
			Temperature:    getEnvAsFloat("CHAT_TEMPERATURE", 0.2),
			RateLimitRPS:   getEnvAsInt("OPENAI_RATE_LIMIT_RPS", 50),
			RequestTimeout: getEnvAsInt("OPENAI_REQUEST_TIMEOUT", 30),
		},
		Pinecone: PineconeConfig{
			APIKey:    getEnv("PINECONE_API_KEY", ""),
			IndexHost: getEnv("PINECONE_INDEX_HOST", ""),
			Namespace: getEnv("PINECONE_NAMESPACE", ""),
		},
		RAG: RAGConfig{
			ChunkSize:        getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 200),
			TopK:             getEnvAsInt("RAG_TOP_K", 5),
			MinScore:         getEnvAsFloat("RAG_MIN_SCORE", 0),
			MaxContextTokens: getEnvAsInt("RAG_MAX_CONTEXT_TOKENS", 3000),
			ReconcileOnStart: getEnvAsBool("RECONCILE_ON_START", false),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "memory"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", ""),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "docchat"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", ""),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("MINIO_SECRET_KEY", ""),
			BucketName:      getEnv("MINIO_BUCKET", "docchat-uploads"),
			UseSSL:          getEnvAsBool("MINIO_USE_SSL", false),
			Region:          getEnv("MINIO_REGION", ""),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			AddSource: getEnvAsBool("LOG_ADD_SOURCE", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("CHUNK_OVERLAP must not be negative, got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAG.TopK)
	}
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when STORE_DRIVER=postgres")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
