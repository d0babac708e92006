package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-ai/docchat/internal/chunker"
	"github.com/arkivo-ai/docchat/internal/llm"
	"github.com/arkivo-ai/docchat/internal/processor"
	"github.com/arkivo-ai/docchat/internal/store"
	"github.com/arkivo-ai/docchat/internal/vectorstore"
)

type fakeEmbedder struct {
	embedCalls int
	batchCalls int
	batchErr   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), float32(i)}
	}
	return out, nil
}

type fakeIndex struct {
	upserted    []vectorstore.Record
	upsertErr   error
	matches     []vectorstore.Match
	queryVector []float32
	queryDocID  string
	queryTopK   int
	deletedDocs []string
	deleteErr   error
	indexedDocs []string
}

func (f *fakeIndex) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, records...)
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, documentID string, topK int) ([]vectorstore.Match, error) {
	f.queryVector = vector
	f.queryDocID = documentID
	f.queryTopK = topK
	return f.matches, nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedDocs = append(f.deletedDocs, documentID)
	return nil
}

func (f *fakeIndex) ListDocumentIDs(ctx context.Context) ([]string, error) {
	return f.indexedDocs, nil
}

func (f *fakeIndex) Health(ctx context.Context) error { return nil }

type fakeGenerator struct {
	answer      string
	genErr      error
	gotQuestion string
	gotContext  string
	tokens      []string
}

func (f *fakeGenerator) GenerateAnswer(ctx context.Context, question, contextText string) (string, error) {
	f.gotQuestion = question
	f.gotContext = contextText
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.answer, nil
}

func (f *fakeGenerator) GenerateAnswerStream(ctx context.Context, question, contextText string) (llm.TokenStream, error) {
	f.gotQuestion = question
	f.gotContext = contextText
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &fakeStream{tokens: f.tokens}, nil
}

type fakeStream struct {
	tokens []string
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func newTestOrchestrator(t *testing.T, idx *fakeIndex, gen *fakeGenerator, cfg Config) (*Orchestrator, *store.MemoryStore, *fakeEmbedder) {
	t.Helper()

	ck, err := chunker.New(chunker.Config{Size: 1000, Overlap: 200}, nil)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	emb := &fakeEmbedder{}

	orch, err := New(Options{
		Chunker:   ck,
		Embedder:  emb,
		Index:     idx,
		Generator: gen,
		Store:     st,
		Config:    cfg,
	})
	require.NoError(t, err)
	return orch, st, emb
}

func fixedExtraction(text string, pages int) func([]byte) (*processor.Extraction, error) {
	return func([]byte) (*processor.Extraction, error) {
		ext := &processor.Extraction{Text: text, PageCount: pages}
		per := len(text) / pages
		for p := 0; p < pages; p++ {
			end := (p + 1) * per
			if p == pages-1 {
				end = len(text)
			}
			ext.Pages = append(ext.Pages, processor.PageSpan{Number: p + 1, Start: p * per, End: end})
		}
		return ext, nil
	}
}

func TestIngestPipeline(t *testing.T) {
	idx := &fakeIndex{}
	orch, st, emb := newTestOrchestrator(t, idx, &fakeGenerator{}, DefaultConfig())

	text := strings.Repeat("alpha bravo ", 250) // 3000 chars, several chunks
	orch.extract = fixedExtraction(text, 2)

	doc, err := orch.Ingest(context.Background(), "handbook.pdf", []byte("%PDF-"))
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, "handbook.pdf", doc.Filename)
	assert.Equal(t, 2, doc.PageCount)

	stored, err := st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, text, stored.FullText)

	assert.Equal(t, 1, emb.batchCalls)
	require.NotEmpty(t, idx.upserted)
	for i, rec := range idx.upserted {
		assert.Equal(t, fmt.Sprintf("%s-chunk-%d", doc.ID, i), rec.ID)
		assert.Equal(t, doc.ID, rec.Metadata.DocumentID)
		assert.Equal(t, i, rec.Metadata.ChunkIndex)
		assert.NotEmpty(t, rec.Metadata.Text)
	}
	// First chunk starts on page 1, last on page 2.
	assert.Equal(t, 1, idx.upserted[0].Metadata.PageNumber)
	assert.Equal(t, 2, idx.upserted[len(idx.upserted)-1].Metadata.PageNumber)
}

func TestIngestCleansUpOnUpsertFailure(t *testing.T) {
	idx := &fakeIndex{upsertErr: errors.New("index down")}
	orch, st, _ := newTestOrchestrator(t, idx, &fakeGenerator{}, DefaultConfig())
	orch.extract = fixedExtraction(strings.Repeat("text ", 300), 1)

	_, err := orch.Ingest(context.Background(), "doc.pdf", []byte("%PDF-"))
	require.Error(t, err)

	// Failed ingest must not leave a queryable document record behind.
	docs, err := st.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestRejectsEmptyText(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeIndex{}, &fakeGenerator{}, DefaultConfig())
	orch.extract = func([]byte) (*processor.Extraction, error) {
		return &processor.Extraction{Text: "   \n  ", PageCount: 1}, nil
	}

	_, err := orch.Ingest(context.Background(), "blank.pdf", []byte("%PDF-"))
	require.ErrorIs(t, err, ErrBadDocument)
	assert.Contains(t, err.Error(), "no extractable text")
}

func TestAnswer(t *testing.T) {
	idx := &fakeIndex{matches: []vectorstore.Match{
		{ID: "d-chunk-0", Score: 0.92, Text: "first passage", ChunkIndex: 0, PageNumber: 1},
		{ID: "d-chunk-3", Score: 0.81, Text: "second passage", ChunkIndex: 3, PageNumber: 2},
	}}
	gen := &fakeGenerator{answer: "the answer"}
	orch, st, _ := newTestOrchestrator(t, idx, gen, DefaultConfig())

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc))

	exchange, err := orch.Answer(context.Background(), doc.ID, "what is it?")
	require.NoError(t, err)

	require.NotNil(t, exchange.UserMessage)
	assert.Equal(t, store.RoleUser, exchange.UserMessage.Role)
	assert.Equal(t, "what is it?", exchange.UserMessage.Content)
	assert.NotEmpty(t, exchange.UserMessage.ID)

	assistant := exchange.AssistantMessage
	require.NotNil(t, assistant)
	assert.Equal(t, store.RoleAssistant, assistant.Role)
	assert.Equal(t, "the answer", assistant.Content)
	require.Len(t, assistant.Snippets, 2)
	assert.Equal(t, "first passage", assistant.Snippets[0].Text)
	assert.Equal(t, 0.92, assistant.Snippets[0].Score)
	assert.Equal(t, 1, assistant.Snippets[0].PageNumber)

	assert.Equal(t, "what is it?", gen.gotQuestion)
	assert.Equal(t, "first passage\n\nsecond passage", gen.gotContext)
	assert.Equal(t, doc.ID, idx.queryDocID)
	assert.Equal(t, 5, idx.queryTopK)

	msgs, err := st.ListMessagesByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "what is it?", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestAnswerUnknownDocument(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeIndex{}, &fakeGenerator{}, DefaultConfig())

	_, err := orch.Answer(context.Background(), "missing", "question")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnswerMinScoreFilter(t *testing.T) {
	idx := &fakeIndex{matches: []vectorstore.Match{
		{Score: 0.9, Text: "relevant"},
		{Score: 0.5, Text: "irrelevant"},
	}}
	gen := &fakeGenerator{answer: "ok"}
	cfg := DefaultConfig()
	cfg.MinScore = 0.7
	orch, st, _ := newTestOrchestrator(t, idx, gen, cfg)

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc))

	exchange, err := orch.Answer(context.Background(), doc.ID, "q")
	require.NoError(t, err)

	assert.Equal(t, "relevant", gen.gotContext)
	require.Len(t, exchange.AssistantMessage.Snippets, 1)
	assert.Equal(t, "relevant", exchange.AssistantMessage.Snippets[0].Text)
}

func TestAnswerFailedGenerationLeavesNoHistory(t *testing.T) {
	idx := &fakeIndex{matches: []vectorstore.Match{{Score: 0.9, Text: "ctx"}}}
	gen := &fakeGenerator{genErr: errors.New("model overloaded")}
	orch, st, _ := newTestOrchestrator(t, idx, gen, DefaultConfig())

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc))

	_, err := orch.Answer(context.Background(), doc.ID, "q")
	require.Error(t, err)

	// Neither side of the exchange is stored when generation fails.
	msgs, err := st.ListMessagesByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAnswerContextTokenBudget(t *testing.T) {
	idx := &fakeIndex{matches: []vectorstore.Match{
		{Score: 0.9, Text: "one two three"},
		{Score: 0.8, Text: "four five six"},
	}}
	gen := &fakeGenerator{answer: "ok"}

	ck, err := chunker.New(chunker.DefaultConfig(), nil)
	require.NoError(t, err)
	st := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxContextTokens = 4 // fits the first match only

	orch, err := New(Options{
		Chunker:   ck,
		Embedder:  &fakeEmbedder{},
		Index:     idx,
		Generator: gen,
		Store:     st,
		Counter:   wordCounter{},
		Config:    cfg,
	})
	require.NoError(t, err)

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc))

	_, err = orch.Answer(context.Background(), doc.ID, "q")
	require.NoError(t, err)
	assert.Equal(t, "one two three", gen.gotContext)
}

func TestAnswerStreamPersistsFullAnswer(t *testing.T) {
	idx := &fakeIndex{matches: []vectorstore.Match{{Score: 0.9, Text: "ctx"}}}
	gen := &fakeGenerator{tokens: []string{"Hel", "lo ", "world"}}
	orch, st, _ := newTestOrchestrator(t, idx, gen, DefaultConfig())

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc))

	session, err := orch.AnswerStream(context.Background(), doc.ID, "q")
	require.NoError(t, err)
	defer session.Close()

	var got strings.Builder
	for {
		tok, err := session.Recv(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got.WriteString(tok)
	}
	assert.Equal(t, "Hello world", got.String())

	msgs, err := st.ListMessagesByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "q", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello world", msgs[1].Content)
	require.Len(t, msgs[1].Snippets, 1)
}

func TestRemove(t *testing.T) {
	idx := &fakeIndex{}
	orch, st, _ := newTestOrchestrator(t, idx, &fakeGenerator{}, DefaultConfig())
	ctx := context.Background()

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(ctx, doc))
	require.NoError(t, st.CreateMessage(ctx, &store.Message{DocumentID: doc.ID, Role: store.RoleUser, Content: "q"}))

	require.NoError(t, orch.Remove(ctx, doc.ID))

	assert.Equal(t, []string{doc.ID}, idx.deletedDocs)
	_, err := st.GetDocument(ctx, doc.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	msgs, err := st.ListMessagesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRemoveUnknownDocument(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeIndex{}, &fakeGenerator{}, DefaultConfig())
	err := orch.Remove(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveKeepsDocumentWhenVectorDeleteFails(t *testing.T) {
	idx := &fakeIndex{deleteErr: errors.New("index down")}
	orch, st, _ := newTestOrchestrator(t, idx, &fakeGenerator{}, DefaultConfig())
	ctx := context.Background()

	doc := &store.Document{Filename: "a.pdf"}
	require.NoError(t, st.CreateDocument(ctx, doc))

	err := orch.Remove(ctx, doc.ID)
	require.Error(t, err)

	// Vectors first: a failed vector delete leaves the record intact.
	_, err = st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
}

func TestReconcileRemovesOrphans(t *testing.T) {
	idx := &fakeIndex{}
	orch, st, _ := newTestOrchestrator(t, idx, &fakeGenerator{}, DefaultConfig())
	ctx := context.Background()

	doc := &store.Document{Filename: "kept.pdf"}
	require.NoError(t, st.CreateDocument(ctx, doc))
	idx.indexedDocs = []string{doc.ID, "orphan-1", "orphan-2"}

	result, err := orch.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Checked)
	assert.ElementsMatch(t, []string{"orphan-1", "orphan-2"}, result.Removed)
	assert.ElementsMatch(t, []string{"orphan-1", "orphan-2"}, idx.deletedDocs)
}
