// Package chunker splits extracted document text into overlapping
// fixed-size windows used as the unit of embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ErrInvalidConfig is returned when the chunking parameters cannot
// produce a terminating sequence.
var ErrInvalidConfig = errors.New("chunker: invalid configuration")

// TextChunk is a bounded substring of document text.
type TextChunk struct {
	// Text is the trimmed window content, never empty.
	Text string `json:"text"`
	// ChunkIndex is the emission order within the document.
	ChunkIndex int `json:"chunk_index"`
	// Start is the byte offset of the untrimmed window in the source text.
	Start int `json:"start"`
	// PageNumber is assigned by the caller from page spans; 0 means unknown.
	PageNumber int `json:"page_number,omitempty"`
	// TokenCount is filled when the chunker has a token counter.
	TokenCount int `json:"token_count,omitempty"`
}

// TokenCounter counts model tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

// Config holds chunking parameters.
type Config struct {
	Size    int // window size in bytes
	Overlap int // shared bytes between consecutive windows
}

// DefaultConfig returns the default window parameters.
func DefaultConfig() Config {
	return Config{Size: 1000, Overlap: 200}
}

// Chunker produces deterministic chunk sequences for a fixed configuration.
type Chunker struct {
	cfg     Config
	counter TokenCounter
}

// New validates the configuration and creates a Chunker. The counter is
// optional; when nil, emitted chunks carry no token counts.
func New(cfg Config, counter TokenCounter) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, cfg.Size)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, cfg.Overlap)
	}
	// A non-positive advance would never terminate.
	if cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d",
			ErrInvalidConfig, cfg.Overlap, cfg.Size)
	}
	return &Chunker{cfg: cfg, counter: counter}, nil
}

// Chunk slices text into overlapping windows. Windows that are empty after
// trimming are skipped without consuming a chunk index, so ChunkIndex always
// matches emission order.
func (c *Chunker) Chunk(text string) []TextChunk {
	if text == "" {
		return nil
	}

	step := c.cfg.Size - c.cfg.Overlap
	var chunks []TextChunk

	for start := 0; start < len(text); start += step {
		end := start + c.cfg.Size
		if end > len(text) {
			end = len(text)
		}

		window := strings.TrimSpace(text[start:end])
		if window == "" {
			continue
		}

		chunk := TextChunk{
			Text:       window,
			ChunkIndex: len(chunks),
			Start:      start,
		}
		if c.counter != nil {
			chunk.TokenCount = c.counter.Count(window)
		}
		chunks = append(chunks, chunk)
	}

	return chunks
}

// TiktokenCounter counts tokens with a tiktoken BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding, typically
// "cl100k_base" for the text-embedding-3 family.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("initialize tokenizer: %w", err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
