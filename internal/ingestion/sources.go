package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentError reports a corpus file that could not be read. It is not
// fatal: the file is skipped and indexing continues.
type DocumentError struct {
	// Source is the file name relative to the corpus directory.
	Source string
	// Err is the underlying failure.
	Err error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("ingestion: document %s: %v", e.Source, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// ListDocuments returns the names of the regular files in dir whose
// extension (case-insensitive) is in exts, sorted lexically. Subdirectories
// are not descended into. A missing or unreadable dir is an error.
func ListDocuments(dir string, exts map[string]Extractor) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading corpus directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
