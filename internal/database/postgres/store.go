package postgres

import (
	"context"
	"fmt"

	"github.com/chatfiles/docpipe/internal/database"
)

// Store implements database.Store on a PostgreSQL pool.
type Store struct {
	pool *Pool
}

// NewStore creates a PostgreSQL-backed store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Counts returns totals for all four tables.
func (s *Store) Counts(ctx context.Context) (database.Counts, error) {
	var c database.Counts
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM extracted_images),
			(SELECT COUNT(*) FROM face_clusters),
			(SELECT COUNT(*) FROM faces)
	`)
	if err := row.Scan(&c.Documents, &c.Images, &c.Clusters, &c.Faces); err != nil {
		return c, fmt.Errorf("count tables: %w", err)
	}
	return c, nil
}

// Verify interface compliance.
var _ database.Store = (*Store)(nil)
