package embedder

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/pdfqa/internal/rag"
)

// retryEmbedder retries a failed Embed call with exponential backoff.
type retryEmbedder struct {
	next       rag.Embedder
	maxRetries uint64
	// initial is the first backoff interval; it doubles up to maxInterval.
	initial     time.Duration
	maxInterval time.Duration
}

// WithRetry wraps next so that transient failures are retried up to
// maxRetries times. maxRetries <= 0 returns next unchanged. Status errors
// that are not temporary and context cancellation are never retried.
func WithRetry(next rag.Embedder, maxRetries int) rag.Embedder {
	if maxRetries <= 0 {
		return next
	}
	return &retryEmbedder{
		next:        next,
		maxRetries:  uint64(maxRetries),
		initial:     500 * time.Millisecond,
		maxInterval: 10 * time.Second,
	}
}

func (r *retryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	op := func() error {
		vecs, err := r.next.Embed(ctx, texts)
		if err == nil {
			out = vecs
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initial
	eb.MaxInterval = r.maxInterval
	eb.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// retryable reports whether err may clear on a later attempt: temporary
// status codes and transport failures. Malformed responses are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var (
		urlErr *url.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return true
	}
	return false
}
