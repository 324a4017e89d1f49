// Package store keeps a durable log of answered questions in SQLite so that
// operators can review what was asked, what came back and which pages were
// cited.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one answered question.
type Entry struct {
	// ID is assigned by the store on Append.
	ID int64 `json:"id"`
	// Question is the text the user asked.
	Question string `json:"question"`
	// Answer is the text returned to the user.
	Answer string `json:"answer"`
	// Outcome is the answer outcome ("ok", "not_found", "invalid", "error").
	Outcome string `json:"outcome"`
	// Sources lists the cited passages as "file p.N".
	Sources []string `json:"sources"`
	// Duration is how long answering took.
	Duration time.Duration `json:"duration_ns"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists and lists answered questions. Implementations must
// be safe for concurrent use.
type HistoryStore interface {
	// Append persists e. ID and CreatedAt are ignored.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.pdfqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pdfqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at path. Use ":memory:" in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS answers (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    sources      TEXT    NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_answers_created ON answers (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single answered question.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	const q = `INSERT INTO answers (question, answer, outcome, sources, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, e.Question, e.Answer, e.Outcome,
		strings.Join(e.Sources, "\n"), e.Duration.Milliseconds(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, question, answer, outcome, sources, duration_ms, created_at
FROM   answers
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			sources string
			ms, ts  int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Outcome, &sources, &ms, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if sources != "" {
			e.Sources = strings.Split(sources, "\n")
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
