package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/pdfqa/internal/rag"
	"github.com/54b3r/pdfqa/internal/store"
)

// fixedEmbedder returns vectors of a fixed dimension.
type fixedEmbedder struct{ dim int }

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestPick(t *testing.T) {
	t.Setenv("CORPUS_DIR", "/from/env")

	if got := pick("/from/flag", true, "CORPUS_DIR", "docs"); got != "/from/flag" {
		t.Errorf("explicit flag: got %q", got)
	}
	if got := pick("", false, "CORPUS_DIR", "docs"); got != "/from/env" {
		t.Errorf("env fallback: got %q", got)
	}
	t.Setenv("CORPUS_DIR", "")
	if got := pick("", false, "CORPUS_DIR", "docs"); got != "docs" {
		t.Errorf("default: got %q", got)
	}
}

func TestPickInt(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "900")
	if got := pickInt(0, false, "CHUNK_SIZE", 1500); got != 900 {
		t.Errorf("env: got %d, want 900", got)
	}
	if got := pickInt(1200, true, "CHUNK_SIZE", 1500); got != 1200 {
		t.Errorf("flag: got %d, want 1200", got)
	}
	t.Setenv("CHUNK_SIZE", "lots")
	if got := pickInt(0, false, "CHUNK_SIZE", 1500); got != 1500 {
		t.Errorf("invalid env: got %d, want 1500", got)
	}
}

func TestOpenIndex_SQLiteDimensionCheck(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INDEX_BACKEND", "sqlite")
	t.Setenv("INDEX_DIR", dir)
	t.Setenv("INDEX_COLLECTION", "docs")

	ctx := context.Background()
	log := discardLogger()

	h, err := openIndex(ctx, log, &fixedEmbedder{dim: 3}, false)
	if err != nil {
		t.Fatalf("openIndex: %v", err)
	}
	if h.name != "sqlite:docs" {
		t.Errorf("name: got %q", h.name)
	}
	if err := h.Insert(ctx, []rag.Record{{ID: "a", Vector: []float32{1, 0, 0}, Text: "x"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_ = h.Close()

	// A 4-dimensional embedder no longer fits the stored vectors.
	if _, err := openIndex(ctx, log, &fixedEmbedder{dim: 4}, false); !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	// Rebuilding skips the check.
	h, err = openIndex(ctx, log, &fixedEmbedder{dim: 4}, true)
	if err != nil {
		t.Fatalf("openIndex for rebuild: %v", err)
	}
	if err := h.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := h.Insert(ctx, []rag.Record{{ID: "b", Vector: []float32{1, 0, 0, 0}, Text: "y"}}); err != nil {
		t.Fatalf("Insert after rebuild: %v", err)
	}
	_ = h.Close()

	// The rebuilt index now matches the 4-dimensional embedder.
	h, err = openIndex(ctx, log, &fixedEmbedder{dim: 4}, false)
	if err != nil {
		t.Fatalf("openIndex after rebuild: %v", err)
	}
	_ = h.Close()
}

func TestOpenIndex_UnknownBackend(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "chroma")
	_, err := openIndex(context.Background(), discardLogger(), &fixedEmbedder{dim: 3}, false)
	if err == nil || !strings.Contains(err.Error(), "chroma") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestOpenHistory(t *testing.T) {
	t.Setenv("PDFQA_HISTORY_DB", "disabled")
	hs, closeFn := openHistory(discardLogger())
	closeFn()
	if hs != nil {
		t.Fatal("expected nil store when disabled")
	}

	path := filepath.Join(t.TempDir(), "history.db")
	t.Setenv("PDFQA_HISTORY_DB", path)
	hs, closeFn = openHistory(discardLogger())
	defer closeFn()
	if hs == nil {
		t.Fatal("expected a store")
	}
	if err := hs.Append(context.Background(), store.Entry{Question: "q", Answer: "a", Outcome: "ok"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestPersona(t *testing.T) {
	t.Setenv("ASSISTANT_NAME", "ManualBot")
	t.Setenv("CORPUS_NAME", "")
	p := persona()
	if p.Name() != "ManualBot" || p.Corpus() != "the indexed documentation" {
		t.Errorf("persona: got %q / %q", p.Name(), p.Corpus())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	want := []string{"index", "ask", "chat", "serve", "history", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	t.Setenv("PDFQA_ENV_FILE", "")
	t.Setenv("PDFQA_CONFIG", "")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version --json is not JSON: %v (%q)", err, out.String())
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("missing fields: %v", info)
	}
}

func TestHistoryCmd_Lists(t *testing.T) {
	t.Setenv("PDFQA_ENV_FILE", "")
	path := filepath.Join(t.TempDir(), "history.db")
	t.Setenv("PDFQA_HISTORY_DB", path)

	hs, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := hs.Append(context.Background(), store.Entry{
		Question: "What is sweet?", Answer: "Sugar.", Outcome: "ok", Sources: []string{"A.pdf p.1"},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = hs.Close()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"history", "-n", "5"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"What is sweet?", "ok", "A.pdf p.1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("history output missing %q:\n%s", want, out.String())
		}
	}
}
