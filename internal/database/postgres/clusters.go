package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chatfiles/docpipe/internal/database"
)

// InsertClusters inserts a fresh generation of cluster rows stamped
// with the run ID and returns the assigned ids in input order. No
// conflict handling: clusters are run-scoped and never merged with a
// previous run's generation.
func (s *Store) InsertClusters(ctx context.Context, runID string, rows []database.ClusterRow) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_clusters
			(run_id, label, sample_image_path, face_count, is_known_person, match_confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare cluster insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(rows))
	for i, row := range rows {
		err := stmt.QueryRowContext(ctx,
			runID,
			nullStringPtr(row.Label),
			nullString(row.SampleImagePath),
			row.FaceCount,
			row.IsKnownPerson,
			nullFloat64Ptr(row.MatchConfidence),
		).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("insert cluster %q: %w", row.OriginalKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cluster batch: %w", err)
	}
	return ids, nil
}

// GetClusters lists cluster rows, optionally filtered to known
// persons, newest generation first.
func (s *Store) GetClusters(ctx context.Context, knownOnly bool) ([]database.ClusterRow, error) {
	query := `
		SELECT id, run_id, label, COALESCE(sample_image_path, ''),
		       face_count, is_known_person, match_confidence, created_at
		FROM face_clusters
	`
	if knownOnly {
		query += " WHERE is_known_person"
	}
	query += " ORDER BY created_at DESC, is_known_person DESC, face_count DESC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var out []database.ClusterRow
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return out, nil
}

// GetCluster retrieves a single cluster row by id, or nil.
func (s *Store) GetCluster(ctx context.Context, id int64) (*database.ClusterRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, run_id, label, COALESCE(sample_image_path, ''),
		       face_count, is_known_person, match_confidence, created_at
		FROM face_clusters WHERE id = $1
	`, id)

	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCluster(scanner interface{ Scan(...any) error }) (database.ClusterRow, error) {
	var c database.ClusterRow
	var label sql.NullString
	var confidence sql.NullFloat64
	if err := scanner.Scan(
		&c.ID, &c.RunID, &label, &c.SampleImagePath,
		&c.FaceCount, &c.IsKnownPerson, &confidence, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan cluster: %w", err)
	}
	if label.Valid {
		c.Label = &label.String
	}
	if confidence.Valid {
		c.MatchConfidence = &confidence.Float64
	}
	return c, nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
