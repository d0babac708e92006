package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 0.0, cfg.RAG.MinScore)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.False(t, cfg.RAG.ReconcileOnStart)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("RAG_MIN_SCORE", "0.7")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RECONCILE_ON_START", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 0.7, cfg.RAG.MinScore)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.RAG.ReconcileOnStart)
}

func TestLoadRejectsOverlapNotSmallerThanChunkSize(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "200")
	t.Setenv("CHUNK_OVERLAP", "200")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_OVERLAP")
}

func TestLoadRejectsUnknownStoreDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresDBHostForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
}
