package embedder

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-ai/docchat/internal/provider"
	"github.com/arkivo-ai/docchat/pkg/retry"
)

type fakeEmbeddingsAPI struct {
	mu       sync.Mutex
	calls    int
	batches  [][]string
	failWith error
	failN    int // fail the first N calls; 0 with failWith set fails forever
}

func (f *fakeEmbeddingsAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	req := conv.Convert()
	texts, _ := req.Input.([]string)
	f.batches = append(f.batches, texts)

	if f.failWith != nil && (f.failN == 0 || f.calls <= f.failN) {
		return openai.EmbeddingResponse{}, f.failWith
	}

	resp := openai.EmbeddingResponse{}
	for i, text := range texts {
		resp.Data = append(resp.Data, openai.Embedding{
			// Deterministic per-text vector so order is verifiable.
			Embedding: []float32{float32(len(text)), float32(i)},
		})
	}
	return resp, nil
}

func fastRetry() retry.Policy {
	p := retry.Default()
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	p.Retryable = provider.IsTransientOpenAI
	return p
}

func newTestClient(t *testing.T, api *fakeEmbeddingsAPI, cache Cache) *Client {
	t.Helper()
	cfg := DefaultConfig("test-key")
	cfg.Retry = fastRetry()
	cfg.RateLimitRPS = 1000

	c, err := New(cfg, cache, nil)
	require.NoError(t, err)
	c.api = api
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	c := newTestClient(t, api, nil)

	texts := []string{"a", "bb", "ccc"}
	vectors, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0])
	}
}

func TestEmbedBatchSplitsIntoProviderBatches(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	c := newTestClient(t, api, nil)
	c.cfg.MaxBatchSize = 2

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	assert.Equal(t, 3, api.calls)
	assert.Equal(t, []string{"one", "two"}, api.batches[0])
	assert.Equal(t, []string{"five"}, api.batches[2])
}

func TestEmbedRetriesTransientErrorsThreeTimes(t *testing.T) {
	rateLimited := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited"}

	// Two sequential calls, each failing persistently: each must make one
	// initial attempt plus exactly three retries.
	for i := 0; i < 2; i++ {
		api := &fakeEmbeddingsAPI{failWith: rateLimited}
		c := newTestClient(t, api, nil)

		_, err := c.Embed(context.Background(), "question")
		require.Error(t, err)
		assert.Equal(t, 4, api.calls)
		assert.True(t, provider.IsTransient(err))
	}
}

func TestEmbedRecoversAfterTransientError(t *testing.T) {
	overloaded := &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
	api := &fakeEmbeddingsAPI{failWith: overloaded, failN: 2}
	c := newTestClient(t, api, nil)

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, vec)
	assert.Equal(t, 3, api.calls)
}

func TestEmbedDoesNotRetryPermanentErrors(t *testing.T) {
	badRequest := &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "invalid input"}
	api := &fakeEmbeddingsAPI{failWith: badRequest}
	c := newTestClient(t, api, nil)

	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 1, api.calls)
	assert.False(t, provider.IsTransient(err))
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]float32
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]float32)}
}

func (m *mapCache) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	emb, ok := m.entries[model+"|"+text]
	return emb, ok
}

func (m *mapCache) SetEmbedding(ctx context.Context, model, text string, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[model+"|"+text] = embedding
}

func TestEmbedBatchUsesCache(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	cache := newMapCache()
	c := newTestClient(t, api, cache)

	_, err := c.EmbedBatch(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)

	// Second round: everything comes from the cache.
	vectors, err := c.EmbedBatch(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 1, api.calls)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := newTestClient(t, &fakeEmbeddingsAPI{}, nil)
	vectors, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestDimensionByModel(t *testing.T) {
	for model, want := range map[string]int{
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	} {
		cfg := DefaultConfig("k")
		cfg.Model = model
		c, err := New(cfg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, want, c.Dimension(), fmt.Sprintf("model %s", model))
	}
}
