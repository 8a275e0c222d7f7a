// Package database defines the relational records the reconciliation
// engine persists and the store-side helpers shared between backends
// (cosine distance, the in-memory HNSW wrapper).
package database

import (
	"time"

	"github.com/chatfiles/docpipe/internal/faces"
)

// DocumentRow is a scanned document as stored. Natural key:
// (dataset_number, filename); a re-run updates the mutable fields.
type DocumentRow struct {
	ID            int64
	DatasetNumber int
	Filename      string
	OriginalURL   string
	FilePathR2    string
	TextContent   string
	OCRConfidence float64
	PageCount     int
	FileSizeBytes int64
	DocumentType  string
	CreatedAt     time.Time
}

// ImageRow is an image extracted from a document page. DocumentID is
// nullable: filename resolution is best-effort and a miss must not
// fail the batch. Duplicates on (document_id, page_number,
// image_path) are skipped, never overwritten.
type ImageRow struct {
	ID         int64
	DocumentID *int64
	PageNumber int
	ImagePath  string
	Width      int
	Height     int
	HasFaces   bool
	CreatedAt  time.Time
}

// ClusterRow is one identity cluster from one clustering run.
// Clusters carry no natural key: every load run inserts a fresh
// generation stamped with the run ID, and cluster identity is only
// meaningful within that run.
type ClusterRow struct {
	ID              int64
	RunID           string
	Label           *string
	SampleImagePath string
	FaceCount       int
	IsKnownPerson   bool
	MatchConfidence *float64
	CreatedAt       time.Time

	// OriginalKey is the clustering engine's key ("3", "singleton_7"),
	// used to remap face memberships onto the inserted row. Not stored.
	OriginalKey string
}

// FaceRow is one detected face. All three foreign keys are nullable
// weak references resolved by filename matching; the embedding is
// nullable for faces whose vector was missing from the artifact.
type FaceRow struct {
	ID         int64
	ImageID    *int64
	DocumentID *int64
	ClusterID  *int64
	BBox       faces.BoundingBox
	Embedding  []float32
	Confidence float64
	CropPath   string
	CreatedAt  time.Time
}

// StoredFaceInfo is a face row joined with its cluster label, as
// served by the read API and held in the HNSW index.
type StoredFaceInfo struct {
	FaceRow
	ClusterLabel *string
}

// Counts summarizes the store for the stats command and run summary.
type Counts struct {
	Documents int
	Images    int
	Clusters  int
	Faces     int
}
