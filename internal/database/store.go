package database

import "context"

// Store is the persistence surface the reconciliation engine writes
// through. Implemented by the postgres package and by the in-memory
// mock used in tests.
type Store interface {
	// UpsertDocuments inserts or updates documents by their natural
	// key (dataset_number, filename); later runs win on conflict.
	// The whole batch is one transaction.
	UpsertDocuments(ctx context.Context, docs []DocumentRow) (int, error)

	// DocumentIDsByFilename reads back filename -> id for every
	// document in the store, including rows from prior runs.
	DocumentIDsByFilename(ctx context.Context) (map[string]int64, error)

	// InsertImages inserts extracted images; duplicates on the
	// natural key are skipped (first write wins). One transaction.
	InsertImages(ctx context.Context, imgs []ImageRow) (int, error)

	// ImageIDsByFilename reads back image-filename (path basename)
	// -> id for every stored image with a non-null path.
	ImageIDsByFilename(ctx context.Context) (map[string]int64, error)

	// InsertClusters inserts a fresh generation of cluster rows
	// stamped with runID and returns their assigned ids in input
	// order. No conflict handling: clusters are run-scoped.
	InsertClusters(ctx context.Context, runID string, rows []ClusterRow) ([]int64, error)

	// InsertFace inserts one face; a duplicate natural key is a
	// no-op. Returns whether a row was actually written. Row-level
	// isolation: one failed face costs only that face.
	InsertFace(ctx context.Context, face FaceRow) (bool, error)

	// MarkImagesWithFaces flags every image referenced by at least
	// one face, in a single bulk update. Returns rows updated.
	MarkImagesWithFaces(ctx context.Context) (int64, error)

	// Counts returns store totals for the run summary.
	Counts(ctx context.Context) (Counts, error)
}
