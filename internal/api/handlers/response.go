// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arkivo-ai/docchat/internal/provider"
	"github.com/arkivo-ai/docchat/internal/rag"
	"github.com/arkivo-ai/docchat/internal/store"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// RespondError sends a JSON error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithDetails sends a JSON error response with details.
func RespondErrorWithDetails(w http.ResponseWriter, status int, message string, details any) {
	RespondJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// RespondBadRequest sends a 400 Bad Request response.
func RespondBadRequest(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusBadRequest, message)
}

// RespondNotFound sends a 404 Not Found response.
func RespondNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondError(w, http.StatusNotFound, message)
}

// RespondInternalError sends a 500 Internal Server Error response.
func RespondInternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "An internal error occurred"
	}
	RespondError(w, http.StatusInternalServerError, message)
}

// RespondForError maps a pipeline error to the right status code: 404 for
// unknown documents, 429/503 for transient provider failures, 500
// otherwise.
func RespondForError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		RespondNotFound(w, "Document not found")
	case errors.Is(err, rag.ErrBadDocument):
		RespondBadRequest(w, "Document cannot be processed")
	case provider.IsTransient(err):
		status := provider.HTTPStatus(err)
		if status == http.StatusTooManyRequests {
			RespondError(w, status, "Rate limited by upstream provider, try again later")
		} else {
			RespondError(w, status, "Upstream provider temporarily unavailable")
		}
	default:
		RespondInternalError(w, "")
	}
}
