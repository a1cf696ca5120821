// Package store provides the SQLite access layer for tripletags.
//
// The database is owned by the extraction pipeline; this package only reads
// rows and rewrites the derived columns it is responsible for:
// - rdf_triples.top_cluster_ids (serialized cluster id list)
// - documents.full_text (verbatim source text)
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the database used when nothing overrides it.
const DefaultDBPath = "document_analysis.db"

// Table and column names.
const (
	TriplesTable      = "rdf_triples"
	TripleTagsColumn  = "triple_tags"
	TopClustersColumn = "top_cluster_ids"

	DocumentsTable = "documents"
	FullTextColumn = "full_text"
)

// Config holds configuration for Open.
type Config struct {
	DBPath string
}

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens the SQLite database at cfg.DBPath.
// Pass ":memory:" for in-memory databases (testing).
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: passes are single-threaded, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	return &Store{db: db, dbPath: cfg.DBPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.dbPath
}

// BeginTx starts a transaction. It lets *Store serve as a batch.Beginner.
func (s *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, opts)
}

// GetDB returns the underlying handle for tests and diagnostics.
func (s *Store) GetDB() *sql.DB {
	return s.db
}
