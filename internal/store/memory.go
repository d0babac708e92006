package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the default mutex-guarded in-process store. Nothing
// survives a process restart.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*Document
	messages  map[string]*Message
	seq       map[string]int // message id -> insertion order, for stable sorting
	nextSeq   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		messages:  make(map[string]*Message),
		seq:       make(map[string]int),
	}
}

func (s *MemoryStore) CreateDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.ID = uuid.NewString()
	doc.UploadedAt = time.Now().UTC()

	stored := *doc
	s.documents[doc.ID] = &stored
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0, len(s.documents))
	for _, doc := range s.documents {
		cp := *doc
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
	return docs, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, id)
	s.deleteMessagesLocked(id)
	return nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC()

	stored := *msg
	s.messages[msg.ID] = &stored
	s.seq[msg.ID] = s.nextSeq
	s.nextSeq++
	return nil
}

func (s *MemoryStore) ListMessagesByDocument(ctx context.Context, documentID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []*Message
	for _, msg := range s.messages {
		if msg.DocumentID == documentID {
			cp := *msg
			msgs = append(msgs, &cp)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return s.seq[msgs[i].ID] < s.seq[msgs[j].ID]
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (s *MemoryStore) DeleteMessagesByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteMessagesLocked(documentID)
	return nil
}

func (s *MemoryStore) deleteMessagesLocked(documentID string) {
	for id, msg := range s.messages {
		if msg.DocumentID == documentID {
			delete(s.messages, id)
			delete(s.seq, id)
		}
	}
}

func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
