// Package rag defines the retrieval-augmented generation core: the records
// held by the vector index, the embedding and index interfaces, and the
// retriever that turns a question into an attributed context block.
// Concrete backends (SQLite, Qdrant) satisfy VectorIndex so callers never
// depend on a specific store.
package rag

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// dimension of the collection it is written to or queried against.
	ErrDimensionMismatch = errors.New("rag: vector dimension mismatch")

	// ErrEmbedding wraps every failure raised by an Embedder backend
	// (service unavailable, malformed response).
	ErrEmbedding = errors.New("rag: embedding failed")

	// ErrEmptyQuery is returned by RetrieveContext for blank questions.
	ErrEmptyQuery = errors.New("rag: empty query")
)

// Metadata is the provenance stored alongside every record.
type Metadata struct {
	// Source is the document file name the text was extracted from.
	Source string

	// Page is the 1-based page number within Source. Zero means unknown.
	Page int
}

// Record is a single entry of the vector index. Records are append-only and
// only disappear when the whole collection is rebuilt.
type Record struct {
	// ID is generated at insertion time and carries no meaning.
	ID string

	// Vector is the embedding of Text.
	Vector []float32

	// Text is the chunk text returned to callers on retrieval.
	Text string

	// Metadata holds the source file and page of the chunk.
	Metadata Metadata
}

// Result is a record returned by a nearest-neighbour query.
type Result struct {
	// ID is the record identifier.
	ID string

	// Text is the stored chunk text.
	Text string

	// Metadata holds the source file and page of the chunk.
	Metadata Metadata

	// Distance is the cosine distance (1 - cosine similarity) to the query
	// vector. Smaller is closer.
	Distance float32
}

// VectorIndex is a persistent collection of records supporting k-nearest
// neighbour search. Queries are safe to run concurrently; Rebuild must not
// overlap with queries or inserts.
type VectorIndex interface {
	// Insert appends records to the collection. IDs must be unique; no
	// deduplication happens here.
	Insert(ctx context.Context, records []Record) error

	// Query returns up to k records ordered by ascending distance to vector.
	// Tie order is store-defined and must not be relied upon.
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)

	// Rebuild destroys the collection and recreates it empty.
	Rebuild(ctx context.Context) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)

	// Dimension returns the vector length of the collection, or 0 when the
	// collection has no fixed dimension yet.
	Dimension(ctx context.Context) (int, error)

	// Close releases any resources held by the index.
	Close() error
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into embeddings with one service call.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
