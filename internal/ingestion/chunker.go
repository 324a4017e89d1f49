// Package ingestion turns a directory of documents into indexed records:
// it extracts page text, splits pages into overlapping windows, embeds them
// and writes them to a rag.VectorIndex.
package ingestion

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
)

// Default window geometry, in characters.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// Chunk is one window of page text with its provenance.
type Chunk struct {
	// Text is the window content, never blank.
	Text string
	// Source is the document file name.
	Source string
	// Page is the 1-based page number.
	Page int
}

// Chunker walks a corpus directory and yields chunks.
type Chunker struct {
	size    int
	overlap int

	// Extractors maps lower-case extensions to the extractor used for them.
	// Files with other extensions are ignored.
	Extractors map[string]Extractor
}

// NewChunker returns a Chunker producing windows of size characters that
// overlap by overlap characters. size must exceed overlap and overlap must
// not be negative.
func NewChunker(size, overlap int) (*Chunker, error) {
	if overlap < 0 {
		return nil, fmt.Errorf("ingestion: chunk overlap must not be negative, got %d", overlap)
	}
	if size <= overlap {
		return nil, fmt.Errorf("ingestion: chunk size %d must be greater than overlap %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap, Extractors: DefaultExtractors()}, nil
}

// Chunks lazily yields every chunk of every recognised document in dir,
// documents in lexical order and pages in page order. A document that
// cannot be read yields a *DocumentError and the walk continues. Any other
// error (missing dir, cancelled ctx) is yielded once and ends the sequence.
func (c *Chunker) Chunks(ctx context.Context, dir string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		names, err := ListDocuments(dir, c.Extractors)
		if err != nil {
			yield(Chunk{}, err)
			return
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(Chunk{}, err)
				return
			}

			ext := c.Extractors[strings.ToLower(filepath.Ext(name))]
			pages, err := ext.Pages(filepath.Join(dir, name))
			if err != nil {
				if !yield(Chunk{}, &DocumentError{Source: name, Err: err}) {
					return
				}
				continue
			}

			for i, page := range pages {
				text := strings.TrimSpace(page)
				if text == "" {
					continue
				}
				for _, w := range SplitPage(text, c.size, c.overlap) {
					if strings.TrimSpace(w) == "" {
						continue
					}
					if !yield(Chunk{Text: w, Source: name, Page: i + 1}, nil) {
						return
					}
				}
			}
		}
	}
}

// SplitPage cuts text into windows of size runes, each starting
// size-overlap runes after the previous one. The last window may be short.
// Text no longer than size yields exactly one window; empty text yields
// none. Callers must ensure size > overlap >= 0.
func SplitPage(text string, size, overlap int) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var windows []string
	for start := 0; start < n; start += size - overlap {
		end := min(start+size, n)
		windows = append(windows, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return windows
}
