package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Triple is an rdf_triples row as seen by the classification passes.
// List columns are kept raw so a malformed value fails only its own row.
type Triple struct {
	ID             int64
	RawTags        *string
	RawTopClusters *string
}

// Tags decodes triple_tags.
func (t Triple) Tags() (TagList, error) {
	return ParseTagList(t.RawTags)
}

// TopClusters decodes top_cluster_ids.
func (t Triple) TopClusters() (ClusterIDs, error) {
	return ParseClusterIDs(t.RawTopClusters)
}

// ListTriples returns every triple in the table's natural order.
// The top_cluster_ids column must already exist.
func (s *Store) ListTriples(ctx context.Context) ([]Triple, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, triple_tags, top_cluster_ids FROM rdf_triples`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying triples: %w", err)
	}
	defer rows.Close()

	out := make([]Triple, 0, 1024)
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.ID, &t.RawTags, &t.RawTopClusters); err != nil {
			return nil, fmt.Errorf("scanning triple: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating triples: %w", err)
	}
	return out, nil
}

// UpdateTopClusters rewrites one triple's top_cluster_ids inside tx.
func UpdateTopClusters(ctx context.Context, tx *sql.Tx, id int64, ids ClusterIDs) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE rdf_triples SET top_cluster_ids = ? WHERE id = ?`,
		ids, id,
	)
	if err != nil {
		return fmt.Errorf("updating top_cluster_ids for triple %d: %w", id, err)
	}
	return requireOneRow(res, "triple", id)
}

func requireOneRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d no longer exists", kind, id)
	}
	return nil
}
