package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfqa/internal/ingestion"
	"github.com/54b3r/pdfqa/internal/logging"
)

// NewIndexCmd constructs the `pdfqa index` command, which rebuilds the vector
// index from the corpus directory.
func NewIndexCmd() *cobra.Command {
	var (
		dir       string
		size      int
		overlap   int
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from a directory of PDFs",
		Long: `Clear the index collection, split every document in the corpus directory
into overlapping windows, embed them and store them with their source file
and page number.

Every run is a full rebuild. Documents that cannot be read and chunks that
fail to embed are reported and skipped.

Environment variables:
  CORPUS_DIR           Corpus directory (default: docs)
  CHUNK_SIZE           Window size in characters (default: 1500)
  CHUNK_OVERLAP        Overlap between windows (default: 200)
  INDEX_BACKEND        sqlite or qdrant (default: sqlite)
  INDEX_DIR            SQLite index directory (default: index_db)
  INDEX_COLLECTION     Collection name (default: docs)
  INDEX_BATCH_SIZE     Chunks embedded per call (default: 1)
  EMBEDDING_*          Embedding backend overrides (see README)

Examples:
  pdfqa index
  pdfqa index --dir ./manuals --chunk-size 1000 --chunk-overlap 100
  INDEX_BACKEND=qdrant pdfqa index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flags := cmd.Flags()
			dir = pick(dir, flags.Changed("dir"), "CORPUS_DIR", defaultCorpusDir)
			size = pickInt(size, flags.Changed("chunk-size"), "CHUNK_SIZE", ingestion.DefaultChunkSize)
			overlap = pickInt(overlap, flags.Changed("chunk-overlap"), "CHUNK_OVERLAP", ingestion.DefaultChunkOverlap)
			batchSize = pickInt(batchSize, flags.Changed("batch-size"), "INDEX_BATCH_SIZE", 1)

			chunker, err := ingestion.NewChunker(size, overlap)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			emb, _, err := buildEmbedder(log, nil)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			idx, err := openIndex(ctx, log, emb, true)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer idx.Close()

			pipeline, err := ingestion.NewPipeline(chunker, emb, idx, ingestion.Config{BatchSize: batchSize})
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			log.Info("starting indexing",
				slog.String("corpus", dir),
				slog.Int("chunk_size", size),
				slog.Int("chunk_overlap", overlap),
				slog.Int("batch_size", batchSize),
			)

			rep, err := pipeline.Run(ctx, dir)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d chunks from %d documents into %s in %s.\n",
				rep.Indexed, rep.Documents, idx.name, rep.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Index now holds %d records.\n", rep.Count)
			for _, de := range rep.DocumentErrors {
				fmt.Fprintf(out, "  skipped document: %v\n", de)
			}
			if rep.Failed > 0 {
				fmt.Fprintf(out, "  %d chunks failed to embed and were skipped.\n", rep.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Corpus directory (default: $CORPUS_DIR or ./docs)")
	cmd.Flags().IntVar(&size, "chunk-size", 0, "Window size in characters (default: $CHUNK_SIZE or 1500)")
	cmd.Flags().IntVar(&overlap, "chunk-overlap", 0, "Overlap between windows (default: $CHUNK_OVERLAP or 200)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Chunks embedded per call (default: $INDEX_BATCH_SIZE or 1)")

	return cmd
}
