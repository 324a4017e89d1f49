package rag

import (
	"context"
	"fmt"
	"math"
)

// CosineDistance returns 1 - cos(a, b). Vectors must have equal length.
// A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// probeText is embedded by ValidateDimensions to learn the live model's
// output dimension.
const probeText = "dimension probe"

// ValidateDimensions embeds a probe string and checks that the embedder's
// output length matches the dimension already stored in idx. An empty index
// (dimension 0) always passes. It returns the embedder's dimension.
func ValidateDimensions(ctx context.Context, emb Embedder, idx VectorIndex) (int, error) {
	got, err := ProbeDimension(ctx, emb)
	if err != nil {
		return 0, err
	}
	return got, CheckDimension(ctx, idx, got)
}

// ProbeDimension returns the length of the vectors emb produces.
func ProbeDimension(ctx context.Context, emb Embedder) (int, error) {
	vecs, err := emb.Embed(ctx, []string{probeText})
	if err != nil {
		return 0, fmt.Errorf("rag: dimension probe: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("rag: dimension probe returned no vector: %w", ErrEmbedding)
	}
	return len(vecs[0]), nil
}

// CheckDimension fails with ErrDimensionMismatch when idx holds vectors of a
// length other than got. An empty index always passes.
func CheckDimension(ctx context.Context, idx VectorIndex, got int) error {
	stored, err := idx.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("rag: reading index dimension: %w", err)
	}
	if stored != 0 && stored != got {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, embedder produces %d", ErrDimensionMismatch, stored, got)
	}
	return nil
}
