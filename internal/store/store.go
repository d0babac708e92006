// Package store holds document metadata and chat history. The contract is
// backend-agnostic so the in-memory default can be swapped for PostgreSQL
// without touching the RAG pipeline.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Document is an ingested PDF. Immutable after creation except deletion.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	PageCount  int       `json:"pageCount"`
	FullText   string    `json:"-"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ContextSnippet is a retrieval match attached to an assistant message.
type ContextSnippet struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	PageNumber int     `json:"pageNumber,omitempty"`
}

// Message is one chat turn entry. Two are created per turn.
type Message struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"documentId"`
	Role       Role             `json:"role"`
	Content    string           `json:"content"`
	Timestamp  time.Time        `json:"timestamp"`
	Snippets   []ContextSnippet `json:"snippets,omitempty"`
}

// Store is the document/message store consumed by the RAG pipeline and the
// request layer. Implementations must be safe for concurrent use.
type Store interface {
	// CreateDocument assigns the document's id and upload time and stores it.
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	// DeleteDocument removes a document and cascades to its messages.
	// Deleting an unknown id is a no-op.
	DeleteDocument(ctx context.Context, id string) error

	// CreateMessage assigns the message's id and timestamp and stores it.
	CreateMessage(ctx context.Context, msg *Message) error
	// ListMessagesByDocument returns messages ordered by timestamp ascending.
	ListMessagesByDocument(ctx context.Context, documentID string) ([]*Message, error)
	DeleteMessagesByDocument(ctx context.Context, documentID string) error

	Health(ctx context.Context) error
	Close() error
}
