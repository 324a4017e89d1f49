package rag

import (
	"context"
	"errors"
	"testing"
)

// openTestIndex opens a SQLiteIndex in a per-test temporary directory.
func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(context.Background(), &SQLiteConfig{Dir: t.TempDir(), Collection: "docs"})
	if err != nil {
		t.Fatalf("open sqlite index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func rec(id string, vec []float32, text string, page int) Record {
	return Record{ID: id, Vector: vec, Text: text, Metadata: Metadata{Source: "a.pdf", Page: page}}
}

func Test_SQLiteIndex_InsertQueryOrder(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)
	ctx := context.Background()

	err := idx.Insert(ctx, []Record{
		rec("far", []float32{0, 1}, "far away", 1),
		rec("near", []float32{1, 0.1}, "close by", 2),
		rec("mid", []float32{1, 1}, "in between", 3),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := idx.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "mid" {
		t.Errorf("want [near mid], got [%s %s]", got[0].ID, got[1].ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("results not ordered by distance: %v > %v", got[0].Distance, got[1].Distance)
	}
	if got[0].Metadata.Source != "a.pdf" || got[0].Metadata.Page != 2 {
		t.Errorf("metadata not round-tripped: %+v", got[0].Metadata)
	}
}

func Test_SQLiteIndex_QueryFewerThanK(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.Insert(ctx, []Record{rec("only", []float32{1, 2, 3}, "x", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := idx.Query(ctx, []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("want 1 result, got %d", len(got))
	}
}

func Test_SQLiteIndex_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)
	ctx := context.Background()

	err := idx.Insert(ctx, []Record{
		rec("first", []float32{1, 0}, "a", 1),
		rec("second", []float32{2, 0}, "b", 1),
		rec("third", []float32{3, 0}, "c", 1),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := idx.Query(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].ID != want {
			t.Errorf("result %d: want %s, got %s", i, want, got[i].ID)
		}
	}
}

func Test_SQLiteIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.Insert(ctx, []Record{rec("a", []float32{1, 0}, "a", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Insert(ctx, []Record{rec("b", []float32{1, 0, 0}, "b", 1)}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("insert: want ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.Query(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("query: want ErrDimensionMismatch, got %v", err)
	}
	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rejected insert must not persist: want 1 record, got %d", n)
	}
}

func Test_SQLiteIndex_RebuildEmptiesAndResetsDimension(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.Insert(ctx, []Record{rec("a", []float32{1, 0}, "a", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("want 0 records after rebuild, got %d", n)
	}
	dim, err := idx.Dimension(ctx)
	if err != nil {
		t.Fatalf("dimension: %v", err)
	}
	if dim != 0 {
		t.Errorf("want dimension 0 after rebuild, got %d", dim)
	}
	if err := idx.Insert(ctx, []Record{rec("b", []float32{1, 0, 0}, "b", 1)}); err != nil {
		t.Errorf("insert with new dimension after rebuild: %v", err)
	}
}

func Test_SQLiteIndex_EmptyQueryReturnsNothing(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)

	got, err := idx.Query(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want no results from empty index, got %d", len(got))
	}
}

func Test_SQLiteIndex_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	first, err := OpenSQLite(ctx, &SQLiteConfig{Dir: dir, Collection: "docs"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Insert(ctx, []Record{rec("a", []float32{1, 0}, "a", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenSQLite(ctx, &SQLiteConfig{Dir: dir, Collection: "docs"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	n, err := second.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("want 1 record after reopen, got %d", n)
	}

	other, err := OpenSQLite(ctx, &SQLiteConfig{Dir: dir, Collection: "other"})
	if err != nil {
		t.Fatalf("open other collection: %v", err)
	}
	defer other.Close()
	if n, _ := other.Count(ctx); n != 0 {
		t.Errorf("collections must be isolated: want 0, got %d", n)
	}
}

func Test_VectorCodec(t *testing.T) {
	t.Parallel()
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: want %v, got %v", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("want error for truncated blob")
	}
}
