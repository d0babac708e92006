// Package processor provides PDF text extraction.
package processor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF magic bytes. It is a cheap
// pre-check so invalid uploads are rejected before any provider call.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// PageSpan records which byte range of the combined text a page occupies.
type PageSpan struct {
	Number int `json:"number"` // 1-based
	Start  int `json:"start"`
	End    int `json:"end"`
}

// Extraction is the result of PDF text extraction.
type Extraction struct {
	Text      string     `json:"text"`
	PageCount int        `json:"page_count"`
	Pages     []PageSpan `json:"pages"`
}

// PageForOffset returns the 1-based page containing the given offset of the
// combined text, or 0 when the offset falls outside every span.
func (e *Extraction) PageForOffset(offset int) int {
	for _, span := range e.Pages {
		if offset >= span.Start && offset < span.End {
			return span.Number
		}
	}
	return 0
}

// ExtractText extracts the text of every page and the page count from raw
// PDF bytes. Page texts are joined with newlines; the spans let callers map
// chunk offsets back to pages.
func ExtractText(data []byte) (*Extraction, error) {
	if !IsPDF(data) {
		return nil, fmt.Errorf("not a PDF document")
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	result := &Extraction{PageCount: pageCount}

	var sb strings.Builder
	for i := 0; i < pageCount; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract text of page %d: %w", i+1, err)
		}

		start := sb.Len()
		sb.WriteString(pageText)
		if !strings.HasSuffix(pageText, "\n") {
			sb.WriteString("\n")
		}

		result.Pages = append(result.Pages, PageSpan{
			Number: i + 1,
			Start:  start,
			End:    sb.Len(),
		})
	}

	result.Text = sb.String()
	return result, nil
}
