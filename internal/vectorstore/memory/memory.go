// Package memory provides an in-process vector index with the same
// contract as the Pinecone client. It backs tests and keyless dev runs.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/arkivo-ai/docchat/internal/vectorstore"
)

// Index is a mutex-guarded in-memory vector index using cosine similarity.
type Index struct {
	mu      sync.RWMutex
	records map[string]vectorstore.Record
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{records: make(map[string]vectorstore.Record)}
}

// Upsert inserts or replaces records by id.
func (idx *Index) Upsert(ctx context.Context, records []vectorstore.Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range records {
		idx.records[r.ID] = r
	}
	return nil
}

// Query returns the topK most similar records of one document, descending
// by cosine similarity.
func (idx *Index) Query(ctx context.Context, vector []float32, documentID string, topK int) ([]vectorstore.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []vectorstore.Match
	for _, r := range idx.records {
		if r.Metadata.DocumentID != documentID {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:         r.ID,
			Score:      cosine(vector, r.Values),
			Text:       r.Metadata.Text,
			ChunkIndex: r.Metadata.ChunkIndex,
			PageNumber: r.Metadata.PageNumber,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByDocument removes every record whose id carries the document prefix.
func (idx *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	prefix := vectorstore.DocumentPrefix(documentID)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id := range idx.records {
		if strings.HasPrefix(id, prefix) {
			delete(idx.records, id)
		}
	}
	return nil
}

// ListDocumentIDs returns the distinct document ids in the index, sorted.
func (idx *Index) ListDocumentIDs(ctx context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range idx.records {
		seen[r.Metadata.DocumentID] = struct{}{}
	}

	docs := make([]string, 0, len(seen))
	for id := range seen {
		docs = append(docs, id)
	}
	sort.Strings(docs)
	return docs, nil
}

// Health always succeeds.
func (idx *Index) Health(ctx context.Context) error {
	return nil
}

// Len reports the number of stored records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
