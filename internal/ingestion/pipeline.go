package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/pdfqa/internal/logging"
	"github.com/54b3r/pdfqa/internal/rag"
)

// State names a stage of an indexing run.
type State string

const (
	StateIdle     State = "idle"
	StateClearing State = "clearing"
	StateChunking State = "chunking"
	StateEmbed    State = "embedding_and_storing"
	StateDone     State = "done"
)

// defaultProgressEvery is how often (in chunks) embedding progress is logged.
const defaultProgressEvery = 50

// Config tunes an indexing run.
type Config struct {
	// BatchSize is the number of chunks embedded per call (default 1).
	BatchSize int

	// ProgressEvery logs progress on the first chunk and every Nth one
	// (default 50).
	ProgressEvery int
}

// ChunkError reports a chunk that could not be embedded. The chunk is
// skipped and the run continues.
type ChunkError struct {
	Chunk Chunk
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("ingestion: chunk %s page %d: %v", e.Chunk.Source, e.Chunk.Page, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Report summarises an indexing run.
type Report struct {
	// Documents counts documents that contributed at least one chunk.
	Documents int
	// SkippedDocuments counts documents that could not be read.
	SkippedDocuments int
	// Chunks is the number of chunks produced.
	Chunks int
	// Indexed is the number of records inserted.
	Indexed int
	// Failed is the number of chunks whose embedding failed.
	Failed int
	// Count is the record count read back from the index after the run.
	Count int

	DocumentErrors []*DocumentError
	ChunkErrors    []*ChunkError
	Duration       time.Duration
}

// Pipeline rebuilds a vector index from a corpus directory.
type Pipeline struct {
	chunker  *Chunker
	embedder rag.Embedder
	index    rag.VectorIndex
	cfg      Config

	// newID generates record ids.
	newID func() string
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(chunker *Chunker, embedder rag.Embedder, index rag.VectorIndex, cfg Config) (*Pipeline, error) {
	if chunker == nil {
		return nil, fmt.Errorf("ingestion: chunker must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		newID:    uuid.NewString,
	}, nil
}

// Run clears the index, chunks every document in dir, then embeds and
// stores the chunks in order. Unreadable documents and chunks whose
// embedding fails are recorded in the report and skipped. Insert failures,
// a missing dir and cancellation abort the run.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Report, error) {
	log := logging.FromContext(ctx)
	start := time.Now()
	rep := &Report{}

	p.enter(log, StateClearing)
	if err := p.index.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("ingestion: clearing index: %w", err)
	}

	p.enter(log, StateChunking)
	chunks, err := p.collect(ctx, log, dir, rep)
	if err != nil {
		return nil, err
	}
	rep.Chunks = len(chunks)
	log.Info("ingestion: chunking complete",
		slog.Int("chunks", rep.Chunks),
		slog.Int("documents", rep.Documents),
		slog.Int("skipped_documents", rep.SkippedDocuments),
	)

	p.enter(log, StateEmbed)
	if err := p.store(ctx, log, chunks, rep); err != nil {
		return nil, err
	}

	n, err := p.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: verifying index: %w", err)
	}
	rep.Count = n
	rep.Duration = time.Since(start)

	p.enter(log, StateDone)
	log.Info("ingestion: indexing complete",
		slog.Int("indexed", rep.Indexed),
		slog.Int("failed", rep.Failed),
		slog.Int("count", rep.Count),
		slog.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (p *Pipeline) enter(log *slog.Logger, s State) {
	log.Info("ingestion: state", slog.String("state", string(s)))
}

// collect materialises all chunks before any embedding starts.
func (p *Pipeline) collect(ctx context.Context, log *slog.Logger, dir string, rep *Report) ([]Chunk, error) {
	var chunks []Chunk
	seen := make(map[string]bool)
	for c, err := range p.chunker.Chunks(ctx, dir) {
		if err != nil {
			var de *DocumentError
			if errors.As(err, &de) {
				rep.SkippedDocuments++
				rep.DocumentErrors = append(rep.DocumentErrors, de)
				log.Warn("ingestion: skipping unreadable document",
					slog.String("source", de.Source),
					slog.String("error", de.Err.Error()),
				)
				continue
			}
			return nil, fmt.Errorf("ingestion: chunking %s: %w", dir, err)
		}
		if !seen[c.Source] {
			seen[c.Source] = true
			rep.Documents++
			log.Debug("ingestion: reading document", slog.String("source", c.Source))
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// store embeds and inserts chunks batch by batch.
func (p *Pipeline) store(ctx context.Context, log *slog.Logger, chunks []Chunk, rep *Report) error {
	total := len(chunks)
	for lo := 0; lo < total; lo += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion: %w", err)
		}
		hi := min(lo+p.cfg.BatchSize, total)
		batch := chunks[lo:hi]

		for i := lo; i < hi; i++ {
			if n := i + 1; n == 1 || n%p.cfg.ProgressEvery == 0 {
				log.Info("ingestion: embedding chunk",
					slog.Int("n", n),
					slog.Int("total", total),
					slog.String("source", chunks[i].Source),
					slog.Int("page", chunks[i].Page),
				)
			}
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := p.embedder.Embed(ctx, texts)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("expected %d embeddings, got %d: %w", len(batch), len(vecs), rag.ErrEmbedding)
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("ingestion: %w", ctx.Err())
			}
			for _, c := range batch {
				rep.ChunkErrors = append(rep.ChunkErrors, &ChunkError{Chunk: c, Err: err})
			}
			rep.Failed += len(batch)
			log.Error("ingestion: embedding failed, skipping",
				slog.Int("chunks", len(batch)),
				slog.String("source", batch[0].Source),
				slog.Int("page", batch[0].Page),
				slog.String("error", err.Error()),
			)
			continue
		}

		records := make([]rag.Record, len(batch))
		for i, c := range batch {
			records[i] = rag.Record{
				ID:       p.newID(),
				Vector:   vecs[i],
				Text:     c.Text,
				Metadata: rag.Metadata{Source: c.Source, Page: c.Page},
			}
		}
		if err := p.index.Insert(ctx, records); err != nil {
			return fmt.Errorf("ingestion: inserting chunks: %w", err)
		}
		rep.Indexed += len(records)
	}
	return nil
}
