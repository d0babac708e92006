// Package provider defines the error taxonomy for external model and index
// providers. Transient failures (rate limits, overload) are retried by the
// clients and surfaced as 429/503; everything else is a plain provider error.
package provider

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Error wraps a provider failure with its operation and transience.
type Error struct {
	Op        string // e.g. "embed", "generate", "upsert"
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and wraps it for the given operation. OpenAI API errors
// are inspected for transient status codes; anything else keeps the
// transience passed by the caller.
func Wrap(op string, err error, transient bool) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Transient: transient, Err: err}
}

// WrapOpenAI wraps err with transience derived from the OpenAI status code.
func WrapOpenAI(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Transient: IsTransientOpenAI(err), Err: err}
}

// IsTransient reports whether err carries a transient provider failure.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// HTTPStatus maps a transient provider error to the status the API should
// return: 429 when the upstream rate-limited us, 503 for other transient
// failures. Returns 0 for non-transient errors.
func HTTPStatus(err error) int {
	if !IsTransient(err) {
		return 0
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return http.StatusTooManyRequests
	}
	return http.StatusServiceUnavailable
}

// IsTransientOpenAI reports whether an error from the OpenAI client is a
// rate-limit or overload signal worth retrying.
func IsTransientOpenAI(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable:
			return true
		}
	}
	return false
}
