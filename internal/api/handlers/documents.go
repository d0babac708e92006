package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arkivo-ai/docchat/internal/store"
	"github.com/arkivo-ai/docchat/pkg/logger"
)

// documentList shapes the documents response.
type documentList struct {
	Documents []*store.Document `json:"documents"`
}

// messageList shapes the messages response.
type messageList struct {
	Messages []*store.Message `json:"messages"`
}

// ListDocuments returns all uploaded documents.
// GET /api/documents
func ListDocuments(reader DocumentReader, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := reader.ListDocuments(r.Context())
		if err != nil {
			log.WithError(err).Error("failed to list documents")
			RespondForError(w, err)
			return
		}
		if docs == nil {
			docs = []*store.Document{}
		}
		RespondJSON(w, http.StatusOK, documentList{Documents: docs})
	}
}

// GetDocument returns one document's metadata.
// GET /api/documents/{id}
func GetDocument(reader DocumentReader, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := reader.GetDocument(r.Context(), id)
		if err != nil {
			RespondForError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, doc)
	}
}

// DeleteDocument removes a document, its vectors, and its chat history.
// DELETE /api/documents/{id}
func DeleteDocument(svc DocumentService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := svc.Remove(r.Context(), id); err != nil {
			log.WithError(err).Error("failed to delete document", "document_id", id)
			RespondForError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// ListMessages returns a document's chat history, oldest first.
// GET /api/documents/{id}/messages
func ListMessages(reader DocumentReader, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := reader.GetDocument(r.Context(), id); err != nil {
			RespondForError(w, err)
			return
		}

		msgs, err := reader.ListMessagesByDocument(r.Context(), id)
		if err != nil {
			log.WithError(err).Error("failed to list messages", "document_id", id)
			RespondForError(w, err)
			return
		}
		if msgs == nil {
			msgs = []*store.Message{}
		}
		RespondJSON(w, http.StatusOK, messageList{Messages: msgs})
	}
}

// DeleteMessages clears a document's chat history without touching the
// document or its vectors.
// DELETE /api/documents/{id}/messages
func DeleteMessages(reader DocumentReader, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := reader.GetDocument(r.Context(), id); err != nil {
			RespondForError(w, err)
			return
		}

		if err := reader.DeleteMessagesByDocument(r.Context(), id); err != nil {
			log.WithError(err).Error("failed to delete messages", "document_id", id)
			RespondForError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
