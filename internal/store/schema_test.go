package store

import (
	"context"
	"errors"
	"testing"
)

func TestEnsureColumn_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTriplesTable(t, s)

	got, err := s.EnsureColumn(ctx, TriplesTable, TopClustersColumn, "TEXT")
	if err != nil {
		t.Fatalf("first EnsureColumn: %v", err)
	}
	if got != ColumnAdded {
		t.Fatalf("first EnsureColumn = %v, want added", got)
	}

	got, err = s.EnsureColumn(ctx, TriplesTable, TopClustersColumn, "TEXT")
	if err != nil {
		t.Fatalf("second EnsureColumn: %v", err)
	}
	if got != ColumnAlreadyExists {
		t.Fatalf("second EnsureColumn = %v, want already exists", got)
	}

	var count int
	err = s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('rdf_triples') WHERE name='top_cluster_ids'").Scan(&count)
	if err != nil {
		t.Fatalf("checking column: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected top_cluster_ids column once, count=%d", count)
	}
}

func TestEnsureColumn_MissingTableIsSchemaError(t *testing.T) {
	s := newTestStore(t)

	_, err := s.EnsureColumn(context.Background(), "no_such_table", "x", "TEXT")
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %T: %v", err, err)
	}
	if schemaErr.Op != "add column" || schemaErr.Table != "no_such_table" || schemaErr.Column != "x" {
		t.Fatalf("unexpected SchemaError fields: %+v", schemaErr)
	}
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTriplesTable(t, s)
	if _, err := s.EnsureColumn(ctx, TriplesTable, TopClustersColumn, "TEXT"); err != nil {
		t.Fatalf("EnsureColumn: %v", err)
	}

	got, err := s.EnsureIndex(ctx, TriplesTable, TopClustersColumn)
	if err != nil {
		t.Fatalf("first EnsureIndex: %v", err)
	}
	if got != IndexCreated {
		t.Fatalf("first EnsureIndex = %v, want created", got)
	}

	got, err = s.EnsureIndex(ctx, TriplesTable, TopClustersColumn)
	if err != nil {
		t.Fatalf("second EnsureIndex: %v", err)
	}
	if got != IndexAlreadyExists {
		t.Fatalf("second EnsureIndex = %v, want already exists", got)
	}

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", IndexName(TopClustersColumn)).Scan(&name)
	if err != nil {
		t.Fatalf("index not found: %v", err)
	}
	if name != "idx_top_cluster_ids" {
		t.Fatalf("index name = %q", name)
	}
}

func TestEnsureIndex_MissingColumnIsSchemaError(t *testing.T) {
	s := newTestStore(t)
	createTriplesTable(t, s)

	_, err := s.EnsureIndex(context.Background(), TriplesTable, "missing_column")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %T: %v", err, err)
	}
	if schemaErr.Op != "create index" {
		t.Fatalf("Op = %q", schemaErr.Op)
	}
}

func TestIsDuplicateColumnError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQL logic error: duplicate column name: top_cluster_ids (1)"), true},
		{errors.New("Duplicate Column Name: x"), true},
		{errors.New("no such table: rdf_triples"), false},
	}
	for _, tt := range tests {
		if got := isDuplicateColumnError(tt.err); got != tt.want {
			t.Errorf("isDuplicateColumnError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("quoteIdent = %s", got)
	}
}
