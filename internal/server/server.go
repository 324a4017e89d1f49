// Package server implements the HTTP JSON API that exposes the answer
// service. The server is started by the `pdfqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pdfqa/internal/answer"
	"github.com/54b3r/pdfqa/internal/logging"
	"github.com/54b3r/pdfqa/internal/version"
)

const (
	// maxBodyBytes caps the POST /api/ask request body.
	maxBodyBytes = 64 << 10
	// maxTopK caps the per-request top_k override.
	maxTopK = 50
)

// New constructs a Server from the provided answer service and config.
func New(asker Asker, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 3 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.AskTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		asker:   asker,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		index:   cfg.Index,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	s.limiter = newAskLimiter(cfg.RateLimit, cfg.RateBurst)

	mux := http.NewServeMux()
	s.route(mux, "POST /api/ask", "ask", s.throttleAsk(http.HandlerFunc(s.handleAsk)))
	s.route(mux, "GET /api/stats", "stats", http.HandlerFunc(s.handleStats))
	s.route(mux, "GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	s.route(mux, "GET /metrics", "metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(log, mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// route registers h under pattern, instrumented with the given handler label.
func (s *Server) route(mux *http.ServeMux, pattern, label string, h http.Handler) {
	mux.Handle(pattern, s.instrument(label, h))
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. The answer service never fails outright;
// its outcome decides the status code.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 0 and %d", maxTopK))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	s.metrics.askInFlight.Inc()
	start := time.Now()
	res := s.asker.AnswerK(ctx, strings.TrimSpace(req.Question), req.TopK)
	s.metrics.askInFlight.Dec()

	outcome := string(res.Outcome)
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	status := http.StatusOK
	switch res.Outcome {
	case answer.OutcomeInvalid:
		status = http.StatusBadRequest
	case answer.OutcomeError:
		status = http.StatusInternalServerError
		if errors.Is(res.Err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}

	sources := res.Sources
	if sources == nil {
		sources = []answer.Source{}
	}
	writeJSON(w, log, status, askResponse{
		Answer:  res.Text,
		Outcome: res.Outcome,
		Sources: sources,
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	info := version.Get()
	resp := statsResponse{Index: s.cfg.IndexName, Version: info.Version, Commit: info.Commit}

	if s.index != nil {
		n, err := s.index.Count(r.Context())
		if err != nil {
			log.Error("stats: count failed", slog.Any("error", err))
			writeError(w, http.StatusServiceUnavailable, "index unavailable")
			return
		}
		resp.Records = n
	}
	writeJSON(w, log, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes {"error": msg} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
