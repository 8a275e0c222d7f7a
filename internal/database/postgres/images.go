package postgres

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/chatfiles/docpipe/internal/database"
)

// InsertImages inserts extracted images in one transaction.
// Conflicts on the natural key are no-ops: the first write wins and
// is never overwritten, unlike the document upsert policy.
func (s *Store) InsertImages(ctx context.Context, imgs []database.ImageRow) (int, error) {
	if len(imgs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO extracted_images
			(document_id, page_number, image_path_r2, width, height, has_faces)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare image insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, img := range imgs {
		res, err := stmt.ExecContext(ctx,
			nullInt64(img.DocumentID),
			img.PageNumber,
			nullString(img.ImagePath),
			img.Width,
			img.Height,
			img.HasFaces,
		)
		if err != nil {
			return 0, fmt.Errorf("insert image %s: %w", img.ImagePath, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit image batch: %w", err)
	}
	return inserted, nil
}

// ImageIDsByFilename reads back image-path basename -> id for every
// stored image with a non-null path, covering rows from prior runs.
func (s *Store) ImageIDsByFilename(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, image_path_r2 FROM extracted_images WHERE image_path_r2 IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if path != "" {
			ids[filepath.Base(path)] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return ids, nil
}

// MarkImagesWithFaces flags every image referenced by at least one
// face, in a single bulk update.
func (s *Store) MarkImagesWithFaces(ctx context.Context) (int64, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE extracted_images
		SET has_faces = TRUE
		WHERE has_faces = FALSE
		  AND id IN (SELECT DISTINCT image_id FROM faces WHERE image_id IS NOT NULL)
	`)
	if err != nil {
		return 0, fmt.Errorf("mark images with faces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// GetDocumentImages lists the images extracted from one document.
func (s *Store) GetDocumentImages(ctx context.Context, documentID int64) ([]database.ImageRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, page_number, COALESCE(image_path_r2, ''),
		       width, height, has_faces, created_at
		FROM extracted_images
		WHERE document_id = $1
		ORDER BY page_number, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query document images: %w", err)
	}
	defer rows.Close()

	var imgs []database.ImageRow
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return imgs, nil
}

func scanImage(scanner interface{ Scan(...any) error }) (database.ImageRow, error) {
	var img database.ImageRow
	var docID = nullInt64(nil)
	if err := scanner.Scan(
		&img.ID, &docID, &img.PageNumber, &img.ImagePath,
		&img.Width, &img.Height, &img.HasFaces, &img.CreatedAt,
	); err != nil {
		return img, fmt.Errorf("scan image: %w", err)
	}
	img.DocumentID = int64Ptr(docID)
	return img, nil
}
