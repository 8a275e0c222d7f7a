package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chatfiles/docpipe/internal/database"
)

// UpsertDocuments inserts or updates documents by (dataset_number,
// filename). Later runs win: text content, OCR confidence, and
// page/size metadata are overwritten on conflict. The batch is one
// transaction.
func (s *Store) UpsertDocuments(ctx context.Context, docs []database.DocumentRow) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents
			(dataset_number, filename, original_url, file_path_r2, text_content,
			 ocr_confidence, page_count, file_size_bytes, document_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dataset_number, filename) DO UPDATE SET
			text_content = EXCLUDED.text_content,
			ocr_confidence = EXCLUDED.ocr_confidence,
			page_count = EXCLUDED.page_count,
			file_size_bytes = EXCLUDED.file_size_bytes,
			document_type = EXCLUDED.document_type
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare document upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx,
			doc.DatasetNumber,
			doc.Filename,
			nullString(doc.OriginalURL),
			nullString(doc.FilePathR2),
			doc.TextContent,
			doc.OCRConfidence,
			doc.PageCount,
			doc.FileSizeBytes,
			doc.DocumentType,
		); err != nil {
			return 0, fmt.Errorf("upsert document %s: %w", doc.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit document batch: %w", err)
	}
	return len(docs), nil
}

// DocumentIDsByFilename reads back filename -> id for the whole
// documents table. Later stages join against documents created in
// earlier runs, so the read-back is deliberately not limited to the
// rows written this run.
func (s *Store) DocumentIDsByFilename(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, filename FROM documents")
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var filename string
		if err := rows.Scan(&id, &filename); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		ids[filename] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return ids, nil
}

// GetDocument retrieves a single document by id. Returns nil when
// the id does not exist.
func (s *Store) GetDocument(ctx context.Context, id int64) (*database.DocumentRow, error) {
	var (
		doc         database.DocumentRow
		originalURL sql.NullString
		filePathR2  sql.NullString
		textContent sql.NullString
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, dataset_number, filename, original_url, file_path_r2,
		       text_content, ocr_confidence, page_count, file_size_bytes,
		       document_type, created_at
		FROM documents WHERE id = $1
	`, id).Scan(
		&doc.ID, &doc.DatasetNumber, &doc.Filename, &originalURL, &filePathR2,
		&textContent, &doc.OCRConfidence, &doc.PageCount, &doc.FileSizeBytes,
		&doc.DocumentType, &doc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	doc.OriginalURL = originalURL.String
	doc.FilePathR2 = filePathR2.String
	doc.TextContent = textContent.String
	return &doc, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
