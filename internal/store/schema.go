package store

import (
	"context"
	"fmt"
	"strings"
)

// ColumnResult reports what EnsureColumn did.
type ColumnResult int

const (
	ColumnAdded ColumnResult = iota
	ColumnAlreadyExists
)

func (r ColumnResult) String() string {
	if r == ColumnAlreadyExists {
		return "already exists"
	}
	return "added"
}

// IndexResult reports what EnsureIndex did.
type IndexResult int

const (
	IndexCreated IndexResult = iota
	IndexAlreadyExists
)

func (r IndexResult) String() string {
	if r == IndexAlreadyExists {
		return "already exists"
	}
	return "created"
}

// SchemaError is a column or index change that failed for a reason other
// than the object already existing.
type SchemaError struct {
	Op     string
	Table  string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s %s.%s: %v", e.Op, e.Table, e.Column, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// EnsureColumn adds column to table. A "duplicate column name" failure
// means an earlier run already added it and is reported as
// ColumnAlreadyExists.
func (s *Store) EnsureColumn(ctx context.Context, table, column, colType string) (ColumnResult, error) {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(column), colType)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if isDuplicateColumnError(err) {
			return ColumnAlreadyExists, nil
		}
		return ColumnAdded, &SchemaError{Op: "add column", Table: table, Column: column, Err: err}
	}
	return ColumnAdded, nil
}

// EnsureIndex creates idx_<column> on table(column) if it does not exist.
func (s *Store) EnsureIndex(ctx context.Context, table, column string) (IndexResult, error) {
	name := IndexName(column)

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`, name,
	).Scan(&count)
	if err != nil {
		return IndexCreated, &SchemaError{Op: "create index", Table: table, Column: column, Err: err}
	}

	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", quoteIdent(name), quoteIdent(table), quoteIdent(column))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return IndexCreated, &SchemaError{Op: "create index", Table: table, Column: column, Err: err}
	}

	if count > 0 {
		return IndexAlreadyExists, nil
	}
	return IndexCreated, nil
}

// IndexName is the index EnsureIndex maintains for column.
func IndexName(column string) string {
	return "idx_" + column
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
