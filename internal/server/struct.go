package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfqa/internal/answer"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed AskTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one POST /api/ask request end to end (default: 3m).
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// Index reports the record count for GET /api/stats. Optional.
	Index Counter
	// IndexName labels the index in GET /api/stats (e.g. "sqlite:docs").
	IndexName string
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/ask (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker answers a question with up to k passages of context.
// *answer.Service satisfies it; tests inject a fake.
type Asker interface {
	AnswerK(ctx context.Context, question string, k int) answer.Result
}

// Counter reports the number of records in the index.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server is the HTTP server that exposes the answer service.
type Server struct {
	// asker handles POST /api/ask.
	asker Asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, kept for tests.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// index backs GET /api/stats; nil disables the record count.
	index Counter
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// limiter throttles POST /api/ask per client IP.
	limiter *askLimiter
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK overrides the number of passages retrieved. 0 uses the default.
	TopK int `json:"top_k,omitempty"`
}

// askResponse is the JSON body returned by POST /api/ask.
type askResponse struct {
	Answer  string          `json:"answer"`
	Outcome answer.Outcome  `json:"outcome"`
	Sources []answer.Source `json:"sources"`
}

// statsResponse is the JSON body returned by GET /api/stats.
type statsResponse struct {
	Index   string `json:"index,omitempty"`
	Records int    `json:"records"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// errorResponse is the JSON body of every 4xx/5xx produced by the server.
type errorResponse struct {
	Error string `json:"error"`
}
