package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// sqliteFile is the database file created inside SQLiteConfig.Dir.
const sqliteFile = "index.db"

// SQLiteConfig holds the location of a local, durable vector index.
type SQLiteConfig struct {
	// Dir is the directory holding the index database (default: index_db).
	Dir string

	// Collection names the record set inside the database (default: docs).
	Collection string
}

// SQLiteIndex implements VectorIndex on a local SQLite database. Vectors are
// stored as little-endian float32 blobs and searched exhaustively by cosine
// distance, which is exact and fast enough for a single document corpus.
// Ties are broken by insertion order.
type SQLiteIndex struct {
	// db is the underlying database handle.
	db *sql.DB

	// collection is the record set this index reads and writes.
	collection string

	// path is the database file path, kept for diagnostics.
	path string
}

// OpenSQLite opens (or creates) the index database under cfg.Dir and makes
// sure the collection exists. The collection survives process restarts.
func OpenSQLite(ctx context.Context, cfg *SQLiteConfig) (*SQLiteIndex, error) {
	if cfg.Dir == "" {
		cfg.Dir = "index_db"
	}
	if cfg.Collection == "" {
		cfg.Collection = "docs"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite index: create %s: %w", cfg.Dir, err)
	}

	path := filepath.Join(cfg.Dir, sqliteFile)
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite index: open %s: %w", path, err)
	}
	// A single connection serialises writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db, collection: cfg.Collection, path: path}
	if err := idx.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// migrate creates the schema and the collection row if they do not exist.
func (s *SQLiteIndex) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS collections (
    name        TEXT    PRIMARY KEY,
    dimension   INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    collection  TEXT    NOT NULL,
    id          TEXT    NOT NULL,
    vector      BLOB    NOT NULL,
    text        TEXT    NOT NULL,
    source      TEXT    NOT NULL DEFAULT '',
    page        INTEGER NOT NULL DEFAULT 0,
    UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records (collection, seq);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite index: migrate: %w", err)
	}
	return s.ensureCollection(ctx, s.db)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ensureCollection inserts the collection row when missing.
func (s *SQLiteIndex) ensureCollection(ctx context.Context, db execer) error {
	const q = `INSERT OR IGNORE INTO collections (name, dimension, created_at) VALUES (?, 0, ?)`
	if _, err := db.ExecContext(ctx, q, s.collection, time.Now().Unix()); err != nil {
		return fmt.Errorf("sqlite index: create collection %q: %w", s.collection, err)
	}
	return nil
}

// Insert appends records in a single transaction. The first record written
// to an empty collection fixes its dimension; later records must match.
func (s *SQLiteIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite index: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dim int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim); err != nil {
		return fmt.Errorf("sqlite index: read dimension: %w", err)
	}

	const q = `INSERT INTO records (collection, id, vector, text, source, page) VALUES (?, ?, ?, ?, ?, ?)`
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("sqlite index: record %s has an empty vector", r.ID)
		}
		if dim == 0 {
			dim = len(r.Vector)
			if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimension = ? WHERE name = ?`, dim, s.collection); err != nil {
				return fmt.Errorf("sqlite index: set dimension: %w", err)
			}
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has %d dimensions, collection %q has %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), s.collection, dim)
		}
		if _, err := tx.ExecContext(ctx, q, s.collection, r.ID, encodeVector(r.Vector), r.Text, r.Metadata.Source, r.Metadata.Page); err != nil {
			return fmt.Errorf("sqlite index: insert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite index: commit insert: %w", err)
	}
	return nil
}

// Query scans the collection and returns the k records closest to vector.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d",
			ErrDimensionMismatch, len(vector), s.collection, dim)
	}

	const q = `SELECT id, vector, text, source, page FROM records WHERE collection = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, s.collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r    Result
			blob []byte
		)
		if err := rows.Scan(&r.ID, &blob, &r.Text, &r.Metadata.Source, &r.Metadata.Page); err != nil {
			return nil, fmt.Errorf("sqlite index: query scan: %w", err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite index: record %s: %w", r.ID, err)
		}
		if len(stored) != dim {
			return nil, fmt.Errorf("%w: stored record %s has %d dimensions", ErrDimensionMismatch, r.ID, len(stored))
		}
		r.Distance = CosineDistance(vector, stored)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite index: query rows: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Rebuild drops every record of the collection and resets its dimension.
func (s *SQLiteIndex) Rebuild(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite index: begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("sqlite index: drop records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return fmt.Errorf("sqlite index: drop collection: %w", err)
	}
	if err := s.ensureCollection(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite index: commit rebuild: %w", err)
	}
	return nil
}

// Count returns the number of records in the collection.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite index: count: %w", err)
	}
	return n, nil
}

// Dimension returns the collection's vector length, 0 while empty.
func (s *SQLiteIndex) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite index: read dimension: %w", err)
	}
	return dim, nil
}

// Path returns the database file backing the index.
func (s *SQLiteIndex) Path() string { return s.path }

// Close releases the database handle.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite index: close: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
