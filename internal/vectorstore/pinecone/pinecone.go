// Package pinecone is a REST client for a Pinecone serverless index,
// implementing the vectorstore.Index contract.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arkivo-ai/docchat/internal/vectorstore"
	"github.com/arkivo-ai/docchat/pkg/logger"
)

// upsertBatchSize is the provider-documented maximum batch size.
const upsertBatchSize = 100

// Config holds Pinecone connection configuration.
type Config struct {
	APIKey    string
	IndexHost string // data-plane host of the index, e.g. https://my-index-abc123.svc.pinecone.io
	Namespace string
	Timeout   time.Duration
}

// Index talks to one Pinecone index over its data-plane REST API.
type Index struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger
}

// New creates a Pinecone index client.
func New(cfg Config, log *logger.Logger) (*Index, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}
	if cfg.IndexHost == "" {
		return nil, fmt.Errorf("pinecone index host is required")
	}
	if log == nil {
		log = logger.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	cfg.IndexHost = strings.TrimSuffix(cfg.IndexHost, "/")

	return &Index{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.WithComponent("pinecone"),
	}, nil
}

// Upsert writes records in batches of at most 100, sequentially. If a batch
// fails, earlier batches stay in the index; the error reports how far the
// upsert got so callers can decide on cleanup.
func (idx *Index) Upsert(ctx context.Context, records []vectorstore.Record) error {
	for lo := 0; lo < len(records); lo += upsertBatchSize {
		hi := lo + upsertBatchSize
		if hi > len(records) {
			hi = len(records)
		}

		body := map[string]any{
			"vectors":   records[lo:hi],
			"namespace": idx.cfg.Namespace,
		}
		if err := idx.post(ctx, "/vectors/upsert", body, nil); err != nil {
			return fmt.Errorf("upsert batch %d..%d of %d records (earlier batches are not rolled back): %w",
				lo, hi, len(records), err)
		}
	}

	idx.log.Debug("upsert complete", "records", len(records))
	return nil
}

type queryResponse struct {
	Matches []struct {
		ID       string               `json:"id"`
		Score    float64              `json:"score"`
		Metadata vectorstore.Metadata `json:"metadata"`
	} `json:"matches"`
}

// Query runs a similarity search filtered to a single document. Matches come
// back ordered by descending score.
func (idx *Index) Query(ctx context.Context, vector []float32, documentID string, topK int) ([]vectorstore.Match, error) {
	body := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"filter":          map[string]any{"documentId": map[string]any{"$eq": documentID}},
		"includeMetadata": true,
		"namespace":       idx.cfg.Namespace,
	}

	var resp queryResponse
	if err := idx.post(ctx, "/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	matches := make([]vectorstore.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, vectorstore.Match{
			ID:         m.ID,
			Score:      m.Score,
			Text:       m.Metadata.Text,
			ChunkIndex: m.Metadata.ChunkIndex,
			PageNumber: m.Metadata.PageNumber,
		})
	}
	return matches, nil
}

// DeleteByDocument lists all ids carrying the document's prefix (paginated)
// and deletes exactly those ids. Serverless indexes do not support
// metadata-filtered deletion, and the two steps are not atomic: records
// upserted concurrently can be missed.
func (idx *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	ids, err := idx.listIDs(ctx, vectorstore.DocumentPrefix(documentID))
	if err != nil {
		return fmt.Errorf("list vectors of document %s: %w", documentID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	body := map[string]any{
		"ids":       ids,
		"namespace": idx.cfg.Namespace,
	}
	if err := idx.post(ctx, "/vectors/delete", body, nil); err != nil {
		return fmt.Errorf("delete %d vectors of document %s: %w", len(ids), documentID, err)
	}

	idx.log.Debug("deleted document vectors", "document_id", documentID, "count", len(ids))
	return nil
}

// ListDocumentIDs pages through every record id and returns the distinct
// document ids encoded in their prefixes.
func (idx *Index) ListDocumentIDs(ctx context.Context) ([]string, error) {
	ids, err := idx.listIDs(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list vectors: %w", err)
	}

	seen := make(map[string]struct{})
	var docs []string
	for _, id := range ids {
		i := strings.LastIndex(id, "-chunk-")
		if i <= 0 {
			continue
		}
		docID := id[:i]
		if _, ok := seen[docID]; !ok {
			seen[docID] = struct{}{}
			docs = append(docs, docID)
		}
	}
	return docs, nil
}

// Health issues a minimal list request to verify connectivity.
func (idx *Index) Health(ctx context.Context) error {
	q := url.Values{"limit": {"1"}}
	if idx.cfg.Namespace != "" {
		q.Set("namespace", idx.cfg.Namespace)
	}
	var resp listResponse
	return idx.get(ctx, "/vectors/list?"+q.Encode(), &resp)
}

type listResponse struct {
	Vectors []struct {
		ID string `json:"id"`
	} `json:"vectors"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

func (idx *Index) listIDs(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	token := ""

	for {
		q := url.Values{}
		if prefix != "" {
			q.Set("prefix", prefix)
		}
		if idx.cfg.Namespace != "" {
			q.Set("namespace", idx.cfg.Namespace)
		}
		if token != "" {
			q.Set("paginationToken", token)
		}

		var resp listResponse
		if err := idx.get(ctx, "/vectors/list?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		for _, v := range resp.Vectors {
			ids = append(ids, v.ID)
		}

		token = resp.Pagination.Next
		if token == "" {
			return ids, nil
		}
	}
}

func (idx *Index) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, idx.cfg.IndexHost+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return idx.do(req, out)
}

func (idx *Index) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.cfg.IndexHost+path, nil)
	if err != nil {
		return err
	}
	return idx.do(req, out)
}

func (idx *Index) do(req *http.Request, out any) error {
	req.Header.Set("Api-Key", idx.cfg.APIKey)

	resp, err := idx.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pinecone %s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
