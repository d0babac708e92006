// Package rag coordinates the document question-answering pipeline:
// chunking and embedding on ingest, retrieval and generation on answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/arkivo-ai/docchat/internal/chunker"
	"github.com/arkivo-ai/docchat/internal/llm"
	"github.com/arkivo-ai/docchat/internal/processor"
	"github.com/arkivo-ai/docchat/internal/store"
	"github.com/arkivo-ai/docchat/internal/vectorstore"
	"github.com/arkivo-ai/docchat/pkg/logger"
)

// ErrBadDocument marks an upload whose content cannot be ingested:
// unreadable PDF bytes or a document with no extractable text.
var ErrBadDocument = errors.New("document cannot be processed")

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces answers from a question and retrieved context.
type Generator interface {
	GenerateAnswer(ctx context.Context, question, contextText string) (string, error)
	GenerateAnswerStream(ctx context.Context, question, contextText string) (llm.TokenStream, error)
}

// Archiver keeps original document bytes in object storage.
type Archiver interface {
	ArchivePDF(ctx context.Context, documentID, filename string, data []byte) (string, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Config holds retrieval and context assembly parameters.
type Config struct {
	TopK int
	// MinScore drops matches below this similarity. Zero disables the
	// filter.
	MinScore float64
	// MaxContextTokens caps the assembled context when a token counter
	// is available.
	MaxContextTokens int
}

// DefaultConfig returns the default retrieval parameters.
func DefaultConfig() Config {
	return Config{TopK: 5, MinScore: 0, MaxContextTokens: 3000}
}

// Orchestrator wires the pipeline components together.
type Orchestrator struct {
	chunker   *chunker.Chunker
	embedder  Embedder
	index     vectorstore.Index
	generator Generator
	store     store.Store
	archiver  Archiver // optional
	counter   chunker.TokenCounter
	cfg       Config
	log       *logger.Logger
	extract   func(data []byte) (*processor.Extraction, error)
}

// Options holds the orchestrator's dependencies. Archiver and Counter
// may be nil.
type Options struct {
	Chunker   *chunker.Chunker
	Embedder  Embedder
	Index     vectorstore.Index
	Generator Generator
	Store     store.Store
	Archiver  Archiver
	Counter   chunker.TokenCounter
	Config    Config
	Logger    *logger.Logger
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Chunker == nil || opts.Embedder == nil || opts.Index == nil || opts.Generator == nil || opts.Store == nil {
		return nil, fmt.Errorf("rag: missing required dependency")
	}
	if opts.Config.TopK <= 0 {
		opts.Config.TopK = DefaultConfig().TopK
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Orchestrator{
		chunker:   opts.Chunker,
		embedder:  opts.Embedder,
		index:     opts.Index,
		generator: opts.Generator,
		store:     opts.Store,
		archiver:  opts.Archiver,
		counter:   opts.Counter,
		cfg:       opts.Config,
		log:       log.WithComponent("rag"),
		extract:   processor.ExtractText,
	}, nil
}

// Ingest extracts text from a PDF, stores the document record, and
// writes embedded chunks to the vector index. On failure after the
// record exists, it removes the record and best-effort deletes any
// vectors already written, so a failed upload does not leave a
// queryable document.
func (o *Orchestrator) Ingest(ctx context.Context, filename string, data []byte) (*store.Document, error) {
	extraction, err := o.extract(data)
	if err != nil {
		return nil, fmt.Errorf("%w: extract text: %v", ErrBadDocument, err)
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return nil, fmt.Errorf("%w: no extractable text", ErrBadDocument)
	}

	doc := &store.Document{
		Filename:  filename,
		PageCount: extraction.PageCount,
		FullText:  extraction.Text,
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := o.indexDocument(ctx, doc, extraction); err != nil {
		o.cleanupFailedIngest(ctx, doc.ID)
		return nil, err
	}

	if o.archiver != nil {
		if _, err := o.archiver.ArchivePDF(ctx, doc.ID, filename, data); err != nil {
			// Archival is best-effort; the document is already searchable.
			o.log.WithError(err).Warn("failed to archive original pdf", "document_id", doc.ID)
		}
	}

	o.log.Info("document ingested",
		"document_id", doc.ID,
		"filename", filename,
		"pages", doc.PageCount,
	)

	return doc, nil
}

func (o *Orchestrator) indexDocument(ctx context.Context, doc *store.Document, extraction *processor.Extraction) error {
	chunks := o.chunker.Chunk(extraction.Text)
	if len(chunks) == 0 {
		return fmt.Errorf("document produced no chunks")
	}
	for i := range chunks {
		chunks[i].PageNumber = extraction.PageForOffset(chunks[i].Start)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = vectorstore.Record{
			ID:     vectorstore.VectorID(doc.ID, ch.ChunkIndex),
			Values: vectors[i],
			Metadata: vectorstore.Metadata{
				DocumentID: doc.ID,
				Text:       ch.Text,
				ChunkIndex: ch.ChunkIndex,
				PageNumber: ch.PageNumber,
			},
		}
	}

	if err := o.index.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	return nil
}

// cleanupFailedIngest removes the partial state of a failed ingest. Both
// deletes are best-effort; anything left behind is collected by Reconcile.
func (o *Orchestrator) cleanupFailedIngest(ctx context.Context, documentID string) {
	if err := o.index.DeleteByDocument(ctx, documentID); err != nil {
		o.log.WithError(err).Warn("failed to clean up vectors after failed ingest", "document_id", documentID)
	}
	if err := o.store.DeleteDocument(ctx, documentID); err != nil {
		o.log.WithError(err).Warn("failed to clean up document after failed ingest", "document_id", documentID)
	}
}

// Exchange is a persisted question/answer pair.
type Exchange struct {
	UserMessage      *store.Message `json:"userMessage"`
	AssistantMessage *store.Message `json:"assistantMessage"`
}

// Answer retrieves context for the question from the document's vectors,
// generates an answer, and persists both sides of the exchange. Returns
// store.ErrNotFound when the document does not exist.
func (o *Orchestrator) Answer(ctx context.Context, documentID, question string) (*Exchange, error) {
	contextText, snippets, err := o.prepare(ctx, documentID, question)
	if err != nil {
		return nil, err
	}

	answer, err := o.generator.GenerateAnswer(ctx, question, contextText)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return o.persistExchange(ctx, documentID, question, answer, snippets)
}

// persistExchange stores the user message and then the assistant message.
// It runs only once the answer exists, so a failed generation leaves no
// dangling user turn in the history.
func (o *Orchestrator) persistExchange(ctx context.Context, documentID, question, answer string, snippets []store.ContextSnippet) (*Exchange, error) {
	userMsg := &store.Message{
		DocumentID: documentID,
		Role:       store.RoleUser,
		Content:    question,
	}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	assistant := &store.Message{
		DocumentID: documentID,
		Role:       store.RoleAssistant,
		Content:    answer,
		Snippets:   snippets,
	}
	if err := o.store.CreateMessage(ctx, assistant); err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}

	return &Exchange{UserMessage: userMsg, AssistantMessage: assistant}, nil
}

// AnswerSession is a streaming answer in progress. Tokens arrive via
// Recv; when the stream ends, the question and the accumulated answer are
// persisted as a message pair.
type AnswerSession struct {
	stream     llm.TokenStream
	snippets   []store.ContextSnippet
	documentID string
	question   string
	orch       *Orchestrator
	buf        strings.Builder
	done       bool
}

// Snippets returns the context snippets retrieved for this answer.
func (s *AnswerSession) Snippets() []store.ContextSnippet { return s.snippets }

// Recv returns the next token. On io.EOF the full answer has been
// persisted.
func (s *AnswerSession) Recv(ctx context.Context) (string, error) {
	token, err := s.stream.Recv()
	if err == io.EOF {
		if !s.done {
			s.done = true
			s.persist(ctx)
		}
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	s.buf.WriteString(token)
	return token, nil
}

// Close releases the underlying stream.
func (s *AnswerSession) Close() error { return s.stream.Close() }

func (s *AnswerSession) persist(ctx context.Context) {
	if _, err := s.orch.persistExchange(ctx, s.documentID, s.question, s.buf.String(), s.snippets); err != nil {
		s.orch.log.WithError(err).Warn("failed to persist streamed exchange", "document_id", s.documentID)
	}
}

// AnswerStream is the streaming variant of Answer. Both messages are
// persisted when the stream is drained; a client that disconnects
// mid-stream leaves no history behind.
func (o *Orchestrator) AnswerStream(ctx context.Context, documentID, question string) (*AnswerSession, error) {
	contextText, snippets, err := o.prepare(ctx, documentID, question)
	if err != nil {
		return nil, err
	}

	stream, err := o.generator.GenerateAnswerStream(ctx, question, contextText)
	if err != nil {
		return nil, fmt.Errorf("open answer stream: %w", err)
	}

	return &AnswerSession{
		stream:     stream,
		snippets:   snippets,
		documentID: documentID,
		question:   question,
		orch:       o,
	}, nil
}

// prepare validates the document and runs retrieval and context assembly.
// Nothing is persisted here; messages are stored only once an answer
// exists.
func (o *Orchestrator) prepare(ctx context.Context, documentID, question string) (string, []store.ContextSnippet, error) {
	if _, err := o.store.GetDocument(ctx, documentID); err != nil {
		return "", nil, err
	}

	vector, err := o.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := o.index.Query(ctx, vector, documentID, o.cfg.TopK)
	if err != nil {
		return "", nil, fmt.Errorf("query vectors: %w", err)
	}

	contextText, snippets := o.buildContext(matches)
	return contextText, snippets, nil
}

// buildContext joins match texts in score order, dropping matches below
// the score floor and stopping at the token budget.
func (o *Orchestrator) buildContext(matches []vectorstore.Match) (string, []store.ContextSnippet) {
	var (
		parts    []string
		snippets []store.ContextSnippet
		tokens   int
	)

	for _, m := range matches {
		if o.cfg.MinScore > 0 && m.Score < o.cfg.MinScore {
			continue
		}
		if o.counter != nil && o.cfg.MaxContextTokens > 0 {
			cost := o.counter.Count(m.Text)
			if tokens+cost > o.cfg.MaxContextTokens && len(parts) > 0 {
				break
			}
			tokens += cost
		}
		parts = append(parts, m.Text)
		snippets = append(snippets, store.ContextSnippet{
			Text:       m.Text,
			Score:      m.Score,
			PageNumber: m.PageNumber,
		})
	}

	return strings.Join(parts, "\n\n"), snippets
}

// Remove deletes a document's vectors, then its record and messages.
// Vectors go first so a partial failure cannot leave a queryable
// document without searchable content still counted as present.
// Returns store.ErrNotFound when the document does not exist.
func (o *Orchestrator) Remove(ctx context.Context, documentID string) error {
	if _, err := o.store.GetDocument(ctx, documentID); err != nil {
		return err
	}

	if err := o.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}

	if o.archiver != nil {
		if err := o.archiver.DeleteDocument(ctx, documentID); err != nil {
			o.log.WithError(err).Warn("failed to delete archived pdf", "document_id", documentID)
		}
	}

	if err := o.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	o.log.Info("document removed", "document_id", documentID)
	return nil
}
