package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatfiles/docpipe/internal/database"
	"github.com/chatfiles/docpipe/internal/faces"
	"github.com/pgvector/pgvector-go"
)

// InsertFace inserts one face row. A duplicate crop path is a no-op
// (first write wins). Runs outside any batch transaction so that a
// failed row costs only itself.
func (s *Store) InsertFace(ctx context.Context, face database.FaceRow) (bool, error) {
	if face.CropPath == "" {
		return false, errors.New("face has no crop path")
	}
	bbox, err := json.Marshal(face.BBox)
	if err != nil {
		return false, fmt.Errorf("encode bounding box: %w", err)
	}

	var embedding any
	if len(face.Embedding) > 0 {
		embedding = pgvector.NewVector(face.Embedding)
	}

	res, err := s.pool.Exec(ctx, `
		INSERT INTO faces
			(image_id, document_id, bounding_box, embedding, cluster_id, confidence, face_crop_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`,
		nullInt64(face.ImageID),
		nullInt64(face.DocumentID),
		bbox,
		embedding,
		nullInt64(face.ClusterID),
		face.Confidence,
		face.CropPath,
	)
	if err != nil {
		return false, fmt.Errorf("insert face %s: %w", face.CropPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

const faceColumns = `
	f.id, f.image_id, f.document_id, f.bounding_box, f.embedding,
	f.cluster_id, f.confidence, f.face_crop_path, f.created_at,
	c.label
`

// GetAllFaces retrieves every face joined with its cluster label,
// used to build the in-memory similarity index at server startup.
func (s *Store) GetAllFaces(ctx context.Context) ([]database.StoredFaceInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+faceColumns+`
		FROM faces f
		LEFT JOIN face_clusters c ON c.id = f.cluster_id
		ORDER BY f.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query all faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// GetClusterFaces lists the faces assigned to one cluster row.
func (s *Store) GetClusterFaces(ctx context.Context, clusterID int64) ([]database.StoredFaceInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+faceColumns+`
		FROM faces f
		LEFT JOIN face_clusters c ON c.id = f.cluster_id
		WHERE f.cluster_id = $1
		ORDER BY f.id
	`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// GetFace retrieves a single face by id, or nil.
func (s *Store) GetFace(ctx context.Context, id int64) (*database.StoredFaceInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+faceColumns+`
		FROM faces f
		LEFT JOIN face_clusters c ON c.id = f.cluster_id
		WHERE f.id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	defer rows.Close()

	out, err := scanFaces(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// FindSimilarFaces finds faces with the closest embeddings using
// pgvector cosine distance. Serves as the fallback when the
// in-memory HNSW index is not built.
func (s *Store) FindSimilarFaces(ctx context.Context, embedding []float32, limit int) ([]database.StoredFaceInfo, []float64, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT `+faceColumns+`, f.embedding <=> $1::vector AS distance
		FROM faces f
		LEFT JOIN face_clusters c ON c.id = f.cluster_id
		WHERE f.embedding IS NOT NULL
		ORDER BY distance
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var out []database.StoredFaceInfo
	var distances []float64
	for rows.Next() {
		var dist float64
		face, err := scanFaceRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, face)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate faces: %w", err)
	}
	return out, distances, nil
}

// scanFaceRow scans the standard face columns, with optional extra
// destinations appended (e.g. a distance column).
func scanFaceRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredFaceInfo, error) {
	var (
		face      database.StoredFaceInfo
		imageID   sql.NullInt64
		docID     sql.NullInt64
		clusterID sql.NullInt64
		bbox      []byte
		vec       *pgvector.Vector
		label     sql.NullString
	)

	dest := make([]any, 0, 10+len(extraDest))
	dest = append(dest,
		&face.ID, &imageID, &docID, &bbox, &vec,
		&clusterID, &face.Confidence, &face.CropPath, &face.CreatedAt,
		&label,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return face, fmt.Errorf("scan face: %w", err)
	}

	face.ImageID = int64Ptr(imageID)
	face.DocumentID = int64Ptr(docID)
	face.ClusterID = int64Ptr(clusterID)
	if vec != nil {
		face.Embedding = vec.Slice()
	}
	if len(bbox) > 0 {
		var b faces.BoundingBox
		if err := json.Unmarshal(bbox, &b); err == nil {
			face.BBox = b
		}
	}
	if label.Valid {
		face.ClusterLabel = &label.String
	}
	return face, nil
}

func scanFaces(rows *sql.Rows) ([]database.StoredFaceInfo, error) {
	var out []database.StoredFaceInfo
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return out, nil
}
