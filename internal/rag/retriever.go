package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultTopK is the number of passages retrieved when the caller passes 0.
	DefaultTopK = 5

	// ContextSeparator is placed between formatted passages.
	ContextSeparator = "\n\n---\n\n"

	// defaultCorpus describes the indexed documents when no name is configured.
	defaultCorpus = "the indexed documentation"

	// EmptyQueryMessage is returned instead of a context for blank questions
	// when no corpus name is configured. It equals Prompt{}.Guidance().
	EmptyQueryMessage = "Please enter a question about " + defaultCorpus + "."
)

// Retriever embeds a question, searches the index and formats the nearest
// passages with source attribution.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the nearest-neighbour search.
	index VectorIndex

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int

	// guidance is returned for blank queries.
	guidance string
}

// NewRetriever constructs a Retriever from the given Embedder and VectorIndex.
// defaultTopK sets the fallback result count when RetrieveContext is called
// with k <= 0.
func NewRetriever(embedder Embedder, index VectorIndex, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
		guidance:    EmptyQueryMessage,
	}, nil
}

// WithPrompt makes blank queries answer with p.Guidance(), so the retriever
// and the prompt name the same corpus. It returns r.
func (r *Retriever) WithPrompt(p Prompt) *Retriever {
	r.guidance = p.Guidance()
	return r
}

// RetrieveContext returns the formatted context for query together with the
// raw results in distance order. A blank query short-circuits with the
// guidance message and ErrEmptyQuery without touching the index. When the
// index holds fewer than k records all of them are returned.
func (r *Retriever) RetrieveContext(ctx context.Context, query string, k int) (string, []Result, error) {
	if strings.TrimSpace(query) == "" {
		return r.guidance, nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return "", nil, fmt.Errorf("rag: embedder returned empty result for query: %w", ErrEmbedding)
	}

	results, err := r.index.Query(ctx, embeddings[0], k)
	if err != nil {
		return "", nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return FormatContext(results), results, nil
}

// FormatContext renders results as attributed passages joined by
// ContextSeparator, preserving their order. An empty slice yields "".
func FormatContext(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, Header(res.Metadata)+"\n"+res.Text)
	}
	return strings.Join(parts, ContextSeparator)
}

// Header renders the attribution line for a passage. A missing source reads
// "unknown" and a missing page reads "?".
func Header(m Metadata) string {
	source := m.Source
	if source == "" {
		source = "unknown"
	}
	page := "?"
	if m.Page > 0 {
		page = strconv.Itoa(m.Page)
	}
	return "[Source: " + source + ", page " + page + "]"
}
