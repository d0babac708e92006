package handlers

import (
	"context"

	"github.com/arkivo-ai/docchat/internal/rag"
	"github.com/arkivo-ai/docchat/internal/store"
)

// DocumentService ingests and removes documents.
type DocumentService interface {
	Ingest(ctx context.Context, filename string, data []byte) (*store.Document, error)
	Remove(ctx context.Context, documentID string) error
}

// AnswerStream is a streaming answer in progress. Recv returns io.EOF
// when the answer is complete.
type AnswerStream interface {
	Recv(ctx context.Context) (string, error)
	Close() error
	Snippets() []store.ContextSnippet
}

// AnswerService answers questions against an ingested document.
type AnswerService interface {
	Answer(ctx context.Context, documentID, question string) (*rag.Exchange, error)
	AnswerStream(ctx context.Context, documentID, question string) (AnswerStream, error)
}

// DocumentReader serves document and message reads.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	ListDocuments(ctx context.Context) ([]*store.Document, error)
	ListMessagesByDocument(ctx context.Context, documentID string) ([]*store.Message, error)
	DeleteMessagesByDocument(ctx context.Context, documentID string) error
}

// HealthChecker reports a dependency's health.
type HealthChecker interface {
	Health(ctx context.Context) error
}
