package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Document is a documents row; FilePath is relative to the ingest base dir.
type Document struct {
	ID       int64
	DocID    string
	FilePath string
}

// ListDocuments returns every document in the table's natural order.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(doc_id, ''), COALESCE(file_path, '') FROM documents`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0, 128)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.DocID, &d.FilePath); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}

// UpdateFullText stores text verbatim in documents.full_text inside tx.
func UpdateFullText(ctx context.Context, tx *sql.Tx, id int64, text string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET full_text = ? WHERE id = ?`,
		text, id,
	)
	if err != nil {
		return fmt.Errorf("updating full_text for document %d: %w", id, err)
	}
	return requireOneRow(res, "document", id)
}
