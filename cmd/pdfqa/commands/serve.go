package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfqa/internal/logging"
	"github.com/54b3r/pdfqa/internal/provider"
	"github.com/54b3r/pdfqa/internal/server"
	"github.com/54b3r/pdfqa/internal/tracing"
)

// NewServeCmd constructs the `pdfqa serve` command, which starts the HTTP
// JSON API.
func NewServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		rateLimit float64
		rateBurst int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pdfqa HTTP API",
		Long: `Start the pdfqa HTTP server on localhost.

Endpoints:
  POST /api/ask      {"question": "...", "top_k": 5} -> {"answer", "outcome", "sources"}
  GET  /api/stats    index name and record count
  GET  /api/health   liveness
  GET  /api/ready    index and model backend reachability
  GET  /metrics      Prometheus metrics

Examples:
  pdfqa serve
  pdfqa serve --port 9090
  MODEL_PROVIDER=openai pdfqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Setup Langfuse tracing, opt-in and a no-op if keys are absent.
			if flush, ok := tracing.Install(); ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			stack, err := buildQueryStack(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stack.Close()

			srv, err := server.New(stack.answer, &server.Config{
				Host:       host,
				Port:       port,
				Logger:     log,
				Pingers:    buildPingers(stack),
				Index:      stack.index,
				IndexName:  stack.index.name,
				AskTimeout: stack.provider.Tuning.Timeout + time.Minute,
				RateLimit:  rateLimit,
				RateBurst:  rateBurst,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 2, "Sustained /api/ask requests per second per client IP")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", 5, "Burst of /api/ask requests allowed per client IP")

	return cmd
}

// buildPingers returns the readiness probes for the stack: the index itself,
// Qdrant's health RPC when it backs the index, and the Ollama server when
// either model runs there. None of them spend tokens.
func buildPingers(stack *queryStack) []server.Pinger {
	pingers := []server.Pinger{server.NewIndexPinger(stack.index, stack.index.backend)}
	if stack.index.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(stack.index.qdrant))
	}

	client := &http.Client{Timeout: 5 * time.Second}
	seen := map[string]bool{}
	addOllama := func(host string) {
		url := strings.TrimRight(host, "/") + "/api/version"
		if host == "" || seen[url] {
			return
		}
		seen[url] = true
		pingers = append(pingers, server.NewHTTPPinger("ollama", url, client))
	}
	if stack.provider.Backend == provider.BackendOllama {
		addOllama(stack.provider.Ollama.Host)
	}
	if stack.embedder.Backend == "ollama" {
		addOllama(stack.embedder.Endpoint)
	}
	return pingers
}
