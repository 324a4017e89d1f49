package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeEmbedder maps known texts to fixed vectors and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

// fakeIndex records queries and returns canned results.
type fakeIndex struct {
	results []Result
	dim     int
	queries int
	lastK   int
}

func (f *fakeIndex) Insert(context.Context, []Record) error { return nil }
func (f *fakeIndex) Query(_ context.Context, _ []float32, k int) ([]Result, error) {
	f.queries++
	f.lastK = k
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}
func (f *fakeIndex) Rebuild(context.Context) error          { return nil }
func (f *fakeIndex) Count(context.Context) (int, error)     { return len(f.results), nil }
func (f *fakeIndex) Dimension(context.Context) (int, error) { return f.dim, nil }
func (f *fakeIndex) Close() error                           { return nil }

func Test_Retriever_EmptyQueryShortCircuits(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	r, err := NewRetriever(emb, idx, 5)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	for _, q := range []string{"", "   ", "\n\t"} {
		text, results, err := r.RetrieveContext(context.Background(), q, 5)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("%q: want ErrEmptyQuery, got %v", q, err)
		}
		if text != EmptyQueryMessage {
			t.Errorf("%q: want guidance message, got %q", q, text)
		}
		if results != nil {
			t.Errorf("%q: want nil results, got %v", q, results)
		}
	}
	if emb.calls != 0 || idx.queries != 0 {
		t.Errorf("empty query must not touch embedder or index: embed=%d query=%d", emb.calls, idx.queries)
	}
}

func Test_Retriever_GuidanceFollowsPrompt(t *testing.T) {
	t.Parallel()
	if EmptyQueryMessage != (Prompt{}).Guidance() {
		t.Errorf("default guidance %q differs from Prompt{}.Guidance() %q", EmptyQueryMessage, Prompt{}.Guidance())
	}

	r, err := NewRetriever(&fakeEmbedder{}, &fakeIndex{}, 5)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	p := Prompt{CorpusName: "SugarCRM"}
	text, _, err := r.WithPrompt(p).RetrieveContext(context.Background(), " ", 0)
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("want ErrEmptyQuery, got %v", err)
	}
	if want := "Please enter a question about SugarCRM."; text != want || text != p.Guidance() {
		t.Errorf("got %q, want %q", text, want)
	}
}

func Test_Retriever_FormatsContextInOrder(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{results: []Result{
		{ID: "1", Text: "Sugar is sweet.", Metadata: Metadata{Source: "A.pdf", Page: 1}},
		{ID: "2", Text: "Salt is salty.", Metadata: Metadata{Source: "B.pdf", Page: 3}},
	}}
	r, err := NewRetriever(&fakeEmbedder{}, idx, 5)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	text, results, err := r.RetrieveContext(context.Background(), "what is sweet?", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	want := "[Source: A.pdf, page 1]\nSugar is sweet." + ContextSeparator + "[Source: B.pdf, page 3]\nSalt is salty."
	if text != want {
		t.Errorf("context mismatch:\nwant %q\ngot  %q", want, text)
	}
	if len(results) != 2 {
		t.Errorf("want 2 results, got %d", len(results))
	}
	if idx.lastK != 5 {
		t.Errorf("k=0 should fall back to default 5, got %d", idx.lastK)
	}
}

func Test_Retriever_EmptyIndexYieldsEmptyContext(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&fakeEmbedder{}, &fakeIndex{}, 3)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	text, results, err := r.RetrieveContext(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if text != "" || len(results) != 0 {
		t.Errorf("want empty context, got %q (%d results)", text, len(results))
	}
}

func Test_Retriever_EmbedErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	r, err := NewRetriever(&fakeEmbedder{err: boom}, &fakeIndex{}, 3)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	if _, _, err := r.RetrieveContext(context.Background(), "q", 3); !errors.Is(err, boom) {
		t.Errorf("want wrapped embed error, got %v", err)
	}
}

func Test_NewRetriever_RejectsNil(t *testing.T) {
	t.Parallel()
	if _, err := NewRetriever(nil, &fakeIndex{}, 1); err == nil {
		t.Error("want error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 1); err == nil {
		t.Error("want error for nil index")
	}
}

func Test_Header_Placeholders(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   Metadata
		want string
	}{
		{Metadata{Source: "doc.pdf", Page: 7}, "[Source: doc.pdf, page 7]"},
		{Metadata{Page: 2}, "[Source: unknown, page 2]"},
		{Metadata{Source: "doc.pdf"}, "[Source: doc.pdf, page ?]"},
	}
	for _, tc := range cases {
		if got := Header(tc.in); got != tc.want {
			t.Errorf("Header(%+v): want %q, got %q", tc.in, tc.want, got)
		}
	}
}

func Test_ValidateDimensions(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{vectors: map[string][]float32{probeText: {1, 2, 3}}}

	if got, err := ValidateDimensions(context.Background(), emb, &fakeIndex{dim: 0}); err != nil || got != 3 {
		t.Errorf("empty index: want (3, nil), got (%d, %v)", got, err)
	}
	if _, err := ValidateDimensions(context.Background(), emb, &fakeIndex{dim: 3}); err != nil {
		t.Errorf("matching index: %v", err)
	}
	_, err := ValidateDimensions(context.Background(), emb, &fakeIndex{dim: 768})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "768") {
		t.Errorf("error should name the stored dimension: %v", err)
	}
}

func Test_CosineDistance(t *testing.T) {
	t.Parallel()
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); d != 0 {
		t.Errorf("identical vectors: want 0, got %v", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); d != 1 {
		t.Errorf("orthogonal vectors: want 1, got %v", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); d != 2 {
		t.Errorf("opposite vectors: want 2, got %v", d)
	}
	if d := CosineDistance([]float32{0, 0}, []float32{1, 0}); d != 1 {
		t.Errorf("zero vector: want 1, got %v", d)
	}
}
