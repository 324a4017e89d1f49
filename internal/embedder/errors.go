package embedder

import (
	"fmt"
	"net/http"

	"github.com/54b3r/pdfqa/internal/rag"
)

// StatusError is returned when an embedding service answers with a non-2xx
// status. It wraps rag.ErrEmbedding.
type StatusError struct {
	// Backend names the service that failed.
	Backend string
	// StatusCode is the HTTP status returned by the service.
	StatusCode int
	// Message is the service's error text, if any.
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Backend, e.StatusCode, msg)
}

func (e *StatusError) Unwrap() error { return rag.ErrEmbedding }

// Temporary reports whether a retry may succeed: rate limiting and server
// errors are transient, other client errors are not.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
