package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/arkivo-ai/docchat/internal/processor"
	"github.com/arkivo-ai/docchat/pkg/logger"
)

// UploadResponse is returned after a successful ingest.
type UploadResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"pageCount"`
	UploadedAt string `json:"uploadedAt"`
}

// HandleUpload ingests an uploaded PDF.
// POST /api/upload, multipart form with a "file" part.
//
// The size limit and PDF check run before any provider is called, so an
// oversized or non-PDF upload is rejected without spending quota.
func HandleUpload(svc DocumentService, maxBytes int64, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				RespondError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload size limit")
				return
			}
			RespondBadRequest(w, "Missing file upload")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				RespondError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload size limit")
				return
			}
			RespondBadRequest(w, "Failed to read file upload")
			return
		}

		if !processor.IsPDF(data) {
			RespondBadRequest(w, "Only PDF files are supported")
			return
		}

		doc, err := svc.Ingest(r.Context(), header.Filename, data)
		if err != nil {
			log.WithError(err).Error("document ingest failed", "filename", header.Filename)
			RespondForError(w, err)
			return
		}

		RespondJSON(w, http.StatusCreated, UploadResponse{
			ID:         doc.ID,
			Filename:   doc.Filename,
			PageCount:  doc.PageCount,
			UploadedAt: doc.UploadedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
}
