// Package vectorstore defines the vector index contract shared by the
// Pinecone client and the in-memory implementation.
package vectorstore

import (
	"context"
	"fmt"
)

// Metadata is stored alongside each vector and returned with query matches.
type Metadata struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunkIndex"`
	PageNumber int    `json:"pageNumber,omitempty"`
}

// Record is one embedded chunk ready for upsert.
type Record struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is a similarity search hit.
type Match struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunkIndex"`
	PageNumber int     `json:"pageNumber,omitempty"`
}

// Index is the vector index used by the RAG pipeline.
type Index interface {
	// Upsert writes records in provider-sized batches. A mid-sequence
	// failure leaves earlier batches in place; callers must treat upsert
	// as non-atomic.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK matches for the vector, restricted to one
	// document, ordered by descending score.
	Query(ctx context.Context, vector []float32, documentID string, topK int) ([]Match, error)

	// DeleteByDocument removes every record whose id carries the
	// document's prefix. List-then-delete is not atomic with respect to
	// concurrent upserts.
	DeleteByDocument(ctx context.Context, documentID string) error

	// ListDocumentIDs returns the distinct document ids present in the
	// index. Used by the reconciliation pass.
	ListDocumentIDs(ctx context.Context) ([]string, error)

	Health(ctx context.Context) error
}

// VectorID derives the globally unique record id for a chunk.
func VectorID(documentID string, seq int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, seq)
}

// DocumentPrefix returns the id prefix shared by all of a document's records.
func DocumentPrefix(documentID string) string {
	return documentID + "-chunk-"
}
