package ingestion

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor returns the plain text of every page of a document, in page
// order. Pages without text are returned as empty strings so that page
// numbers stay aligned.
type Extractor interface {
	Pages(path string) ([]string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(path string) ([]string, error)

// Pages calls f(path).
func (f ExtractorFunc) Pages(path string) ([]string, error) { return f(path) }

// DefaultExtractors maps lower-case file extensions to their extractor.
func DefaultExtractors() map[string]Extractor {
	return map[string]Extractor{
		".pdf": ExtractorFunc(pdfPages),
		".txt": ExtractorFunc(textPages),
		".md":  ExtractorFunc(textPages),
	}
}

// pdfPages extracts page text with ledongthuc/pdf. The parser panics on
// some malformed inputs; those are turned into errors.
func pdfPages(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// textPages treats a whole text file as a single page.
func textPages(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []string{strings.ToValidUTF8(string(b), "")}, nil
}
