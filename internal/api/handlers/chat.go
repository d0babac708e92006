package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/arkivo-ai/docchat/pkg/logger"
)

// ChatRequestBody is the incoming chat request.
type ChatRequestBody struct {
	DocumentID string `json:"documentId"`
	Question   string `json:"question"`
}

func decodeChatRequest(r *http.Request) (*ChatRequestBody, string) {
	var body ChatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, "Invalid JSON body"
	}
	if strings.TrimSpace(body.DocumentID) == "" {
		return nil, "documentId is required"
	}
	if strings.TrimSpace(body.Question) == "" {
		return nil, "question is required"
	}
	return &body, ""
}

// HandleChat answers a question about a document. The response carries
// both persisted messages of the exchange:
//
//	{"userMessage": {...}, "assistantMessage": {...}}
//
// POST /api/chat
func HandleChat(svc AnswerService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, msg := decodeChatRequest(r)
		if body == nil {
			RespondBadRequest(w, msg)
			return
		}

		exchange, err := svc.Answer(r.Context(), body.DocumentID, body.Question)
		if err != nil {
			log.WithError(err).Error("chat failed", "document_id", body.DocumentID)
			RespondForError(w, err)
			return
		}

		RespondJSON(w, http.StatusOK, exchange)
	}
}

// HandleChatStream answers a question as a server-sent event stream.
// POST /api/chat/stream
//
// Events: "token" carries each answer fragment, "sources" the retrieved
// snippets, "done" ends the stream. Errors after the stream opens arrive
// as an "error" event since the status line is already written.
func HandleChatStream(svc AnswerService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, msg := decodeChatRequest(r)
		if body == nil {
			RespondBadRequest(w, msg)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			RespondInternalError(w, "Streaming not supported")
			return
		}

		session, err := svc.AnswerStream(r.Context(), body.DocumentID, body.Question)
		if err != nil {
			log.WithError(err).Error("chat stream failed", "document_id", body.DocumentID)
			RespondForError(w, err)
			return
		}
		defer session.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		writeEvent(w, "sources", session.Snippets())
		flusher.Flush()

		for {
			token, err := session.Recv(r.Context())
			if err == io.EOF {
				break
			}
			if err != nil {
				log.WithError(err).Error("chat stream interrupted", "document_id", body.DocumentID)
				writeEvent(w, "error", map[string]string{"error": "stream interrupted"})
				flusher.Flush()
				return
			}
			writeEvent(w, "token", map[string]string{"token": token})
			flusher.Flush()
		}

		writeEvent(w, "done", map[string]bool{"done": true})
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
