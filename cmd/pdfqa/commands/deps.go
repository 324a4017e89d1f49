package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/pdfqa/internal/answer"
	"github.com/54b3r/pdfqa/internal/embedder"
	"github.com/54b3r/pdfqa/internal/provider"
	"github.com/54b3r/pdfqa/internal/rag"
	"github.com/54b3r/pdfqa/internal/store"
)

// Index defaults, shared by every command.
const (
	defaultIndexBackend = "sqlite"
	defaultIndexDir     = "index_db"
	defaultCollection   = "docs"
	defaultCorpusDir    = "docs"
)

// indexHandle is an opened vector index plus what the outer surfaces report
// about it.
type indexHandle struct {
	rag.VectorIndex
	// backend is "sqlite" or "qdrant".
	backend string
	// name is "<backend>:<collection>".
	name string
	// qdrant is the live client when backend is qdrant, for readiness probes.
	qdrant *qdrant.Client
}

// buildEmbedder resolves the embedding backend from the environment and
// rejects chat model names. When reg is non-nil the embedder is
// instrumented against it.
func buildEmbedder(log *slog.Logger, reg prometheus.Registerer) (rag.Embedder, *embedder.Config, error) {
	cfg, err := embedder.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if err := embedder.Validate(log, cfg); err != nil {
		return nil, nil, err
	}
	emb, err := embedder.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	if reg != nil {
		emb = embedder.Instrument(emb, embedder.NewMetrics(reg))
	}
	log.Info("embedder initialised",
		slog.String("backend", cfg.Backend),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", cfg.VectorSize()),
		slog.Int("max_retries", cfg.MaxRetries),
	)
	return emb, cfg, nil
}

// openIndex opens the index selected by INDEX_BACKEND. The embedder is
// probed once: its output dimension sizes new Qdrant collections and must
// match the stored vectors. An index about to be rebuilt skips the match,
// since Rebuild recreates it at the probed dimension.
func openIndex(ctx context.Context, log *slog.Logger, emb rag.Embedder, rebuilding bool) (*indexHandle, error) {
	backend := strings.ToLower(getEnvOrDefault("INDEX_BACKEND", defaultIndexBackend))
	collection := getEnvOrDefault("INDEX_COLLECTION", defaultCollection)
	if backend != "sqlite" && backend != "qdrant" {
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q, valid values: sqlite, qdrant", backend)
	}

	h := &indexHandle{backend: backend, name: backend + ":" + collection}
	dim, err := rag.ProbeDimension(ctx, emb)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", h.name, err)
	}

	switch backend {
	case "sqlite":
		dir := getEnvOrDefault("INDEX_DIR", defaultIndexDir)
		idx, err := rag.OpenSQLite(ctx, &rag.SQLiteConfig{Dir: dir, Collection: collection})
		if err != nil {
			return nil, err
		}
		h.VectorIndex = idx
		log.Info("sqlite index opened", slog.String("path", idx.Path()), slog.String("collection", collection))

	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dim), //nolint:gosec // dimensions are positive
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		h.VectorIndex = idx
		h.qdrant = idx.Client()
		log.Info("qdrant index ready", slog.String("host", host), slog.Int("port", port), slog.String("collection", collection))
	}

	if rebuilding {
		log.Info("index will be rebuilt", slog.Int("dimension", dim))
		return h, nil
	}
	if err := rag.CheckDimension(ctx, h, dim); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("index %s: %w (run `pdfqa index` to rebuild it for the current embedding model)", h.name, err)
	}
	log.Info("index dimension verified", slog.Int("dimension", dim))
	return h, nil
}

// openHistory opens the answer history log. PDFQA_HISTORY_DB overrides the
// default path (~/.pdfqa/history.db); "disabled" turns it off. Failures are
// logged and history is disabled, never fatal.
func openHistory(log *slog.Logger) (store.HistoryStore, func()) {
	dbPath := os.Getenv("PDFQA_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via PDFQA_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// persona reads the assistant and corpus names used in the system prompt.
func persona() rag.Prompt {
	return rag.Prompt{
		AssistantName: os.Getenv("ASSISTANT_NAME"),
		CorpusName:    os.Getenv("CORPUS_NAME"),
	}
}

// queryStack is everything needed to answer questions: embedder, index,
// retriever, chat model and history, assembled once per command.
type queryStack struct {
	answer   *answer.Service
	index    *indexHandle
	prompt   rag.Prompt
	provider *provider.Config
	embedder *embedder.Config
	closers  []func()
}

// Close releases the stack's resources in reverse order of acquisition.
func (q *queryStack) Close() {
	for i := len(q.closers) - 1; i >= 0; i-- {
		q.closers[i]()
	}
}

// buildQueryStack wires the answer service from the environment. reg, when
// non-nil, receives the embedding metrics.
func buildQueryStack(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*queryStack, error) {
	q := &queryStack{prompt: persona()}

	emb, embCfg, err := buildEmbedder(log, reg)
	if err != nil {
		return nil, err
	}
	q.embedder = embCfg

	idx, err := openIndex(ctx, log, emb, false)
	if err != nil {
		return nil, err
	}
	q.index = idx
	q.closers = append(q.closers, func() { _ = idx.Close() })

	topK := getEnvInt("RETRIEVAL_TOP_K", rag.DefaultTopK)
	retriever, err := rag.NewRetriever(emb, idx, topK)
	if err != nil {
		q.Close()
		return nil, err
	}
	retriever.WithPrompt(q.prompt)

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	q.provider = providerCfg
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	history, closeHistory := openHistory(log)
	q.closers = append(q.closers, closeHistory)

	temp := providerCfg.Tuning.Temperature
	svc, err := answer.New(&answer.Config{
		ChatModel:          chatModel,
		Retriever:          retriever,
		Prompt:             q.prompt,
		TopK:               topK,
		Temperature:        &temp,
		DisableTemperature: !providerCfg.SupportsTemperature(),
		Timeout:            providerCfg.Tuning.Timeout,
		ContextTokens:      providerCfg.Tuning.ContextTokens,
		History:            history,
	})
	if err != nil {
		q.Close()
		return nil, err
	}
	q.answer = svc
	return q, nil
}
