//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chatfiles/docpipe/internal/config"
	"github.com/chatfiles/docpipe/internal/database"
	"github.com/chatfiles/docpipe/internal/faces"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testDoc(filename string, dataset int) database.DocumentRow {
	return database.DocumentRow{
		DatasetNumber: dataset,
		Filename:      filename,
		TextContent:   "original text",
		OCRConfidence: 0.8,
		PageCount:     2,
		FileSizeBytes: 1000,
		DocumentType:  "other",
	}
}

func TestStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	t.Run("MigrationsApplied", func(t *testing.T) {
		applied, err := pool.MigrationsApplied(ctx)
		if err != nil {
			t.Fatalf("Failed to list migrations: %v", err)
		}
		if len(applied) < 5 {
			t.Errorf("Expected at least 5 applied migrations, got %d", len(applied))
		}
	})

	t.Run("DocumentUpsertIsIdempotent", func(t *testing.T) {
		docs := []database.DocumentRow{testDoc("report.pdf", 1), testDoc("memo.pdf", 1)}
		if _, err := store.UpsertDocuments(ctx, docs); err != nil {
			t.Fatalf("Failed to upsert documents: %v", err)
		}

		ids, err := store.DocumentIDsByFilename(ctx)
		if err != nil {
			t.Fatalf("Failed to read back ids: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("Expected 2 documents, got %d", len(ids))
		}
		firstID := ids["report.pdf"]

		// Re-run with updated text: same row, mutable fields updated.
		updated := testDoc("report.pdf", 1)
		updated.TextContent = "updated text"
		updated.PageCount = 5
		if _, err := store.UpsertDocuments(ctx, []database.DocumentRow{updated}); err != nil {
			t.Fatalf("Failed to re-upsert: %v", err)
		}

		ids, err = store.DocumentIDsByFilename(ctx)
		if err != nil {
			t.Fatalf("Failed to read back ids: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("Expected still 2 documents after re-upsert, got %d", len(ids))
		}
		if ids["report.pdf"] != firstID {
			t.Errorf("Expected stable id %d, got %d", firstID, ids["report.pdf"])
		}

		doc, err := store.GetDocument(ctx, firstID)
		if err != nil {
			t.Fatalf("Failed to get document: %v", err)
		}
		if doc.TextContent != "updated text" || doc.PageCount != 5 {
			t.Errorf("Expected mutable fields updated, got %+v", doc)
		}
	})

	t.Run("SameFilenameDifferentDataset", func(t *testing.T) {
		if _, err := store.UpsertDocuments(ctx, []database.DocumentRow{testDoc("report.pdf", 2)}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		counts, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if counts.Documents != 3 {
			t.Errorf("Expected 3 documents (natural key includes dataset), got %d", counts.Documents)
		}
	})

	t.Run("ImageDuplicatesSkipped", func(t *testing.T) {
		ids, err := store.DocumentIDsByFilename(ctx)
		if err != nil {
			t.Fatalf("Failed to read back ids: %v", err)
		}
		docID := ids["report.pdf"]

		imgs := []database.ImageRow{
			{DocumentID: &docID, PageNumber: 1, ImagePath: "images/p1.png", Width: 640, Height: 480},
			{PageNumber: 1, ImagePath: "images/orphan.png", Width: 100, Height: 100},
		}
		n, err := store.InsertImages(ctx, imgs)
		if err != nil {
			t.Fatalf("Failed to insert images: %v", err)
		}
		if n != 2 {
			t.Fatalf("Expected 2 images inserted, got %d", n)
		}

		// Re-inserting the same rows is a no-op.
		n, err = store.InsertImages(ctx, imgs)
		if err != nil {
			t.Fatalf("Failed to re-insert images: %v", err)
		}
		if n != 0 {
			t.Errorf("Expected 0 inserted on duplicate batch, got %d", n)
		}

		imageIDs, err := store.ImageIDsByFilename(ctx)
		if err != nil {
			t.Fatalf("Failed to read back image ids: %v", err)
		}
		if len(imageIDs) != 2 {
			t.Errorf("Expected 2 image ids, got %d", len(imageIDs))
		}
		if _, ok := imageIDs["p1.png"]; !ok {
			t.Error("Expected basename key 'p1.png' in read-back")
		}
	})

	t.Run("ClusterGenerationsAreRunScoped", func(t *testing.T) {
		label := "Jane Doe"
		confidence := 0.9
		rows := []database.ClusterRow{
			{Label: &label, IsKnownPerson: true, MatchConfidence: &confidence, FaceCount: 2, OriginalKey: "0"},
			{FaceCount: 1, OriginalKey: "singleton_2"},
		}

		run1 := uuid.New().String()
		ids1, err := store.InsertClusters(ctx, run1, rows)
		if err != nil {
			t.Fatalf("Failed to insert clusters: %v", err)
		}
		if len(ids1) != 2 {
			t.Fatalf("Expected 2 cluster ids, got %d", len(ids1))
		}

		run2 := uuid.New().String()
		ids2, err := store.InsertClusters(ctx, run2, rows)
		if err != nil {
			t.Fatalf("Failed to insert second generation: %v", err)
		}
		if ids2[0] == ids1[0] {
			t.Error("Expected a fresh generation, got reused ids")
		}

		cluster, err := store.GetCluster(ctx, ids1[0])
		if err != nil {
			t.Fatalf("Failed to get cluster: %v", err)
		}
		if cluster.RunID != run1 {
			t.Errorf("Expected run id %s, got %s", run1, cluster.RunID)
		}
		if cluster.Label == nil || *cluster.Label != "Jane Doe" {
			t.Errorf("Unexpected cluster label: %+v", cluster)
		}

		known, err := store.GetClusters(ctx, true)
		if err != nil {
			t.Fatalf("Failed to list known clusters: %v", err)
		}
		for _, c := range known {
			if !c.IsKnownPerson {
				t.Errorf("known-only listing returned %+v", c)
			}
		}
	})

	t.Run("FaceInsertAndNullForeignKeys", func(t *testing.T) {
		imageIDs, err := store.ImageIDsByFilename(ctx)
		if err != nil {
			t.Fatalf("Failed to read back image ids: %v", err)
		}
		imageID := imageIDs["p1.png"]

		embedding := make([]float32, database.EmbeddingDim)
		embedding[0] = 1

		resolved := database.FaceRow{
			ImageID:    &imageID,
			BBox:       faces.BoundingBox{X: 1, Y: 2, W: 30, H: 40},
			Embedding:  embedding,
			Confidence: 0.9,
			CropPath:   "crops/f1.jpg",
		}
		inserted, err := store.InsertFace(ctx, resolved)
		if err != nil {
			t.Fatalf("Failed to insert face: %v", err)
		}
		if !inserted {
			t.Error("Expected face inserted")
		}

		// The crop path is the natural key; a face without one is
		// rejected rather than stored outside the unique constraint.
		if _, err := store.InsertFace(ctx, database.FaceRow{Confidence: 0.5}); err == nil {
			t.Error("expected error for empty crop path")
		}

		// Duplicate crop path is a no-op, not an error.
		inserted, err = store.InsertFace(ctx, resolved)
		if err != nil {
			t.Fatalf("Duplicate insert errored: %v", err)
		}
		if inserted {
			t.Error("Expected duplicate crop path to be skipped")
		}

		// All foreign keys null and no embedding: still a valid row.
		orphan := database.FaceRow{
			BBox:       faces.BoundingBox{X: 0, Y: 0, W: 10, H: 10},
			Confidence: 0.5,
			CropPath:   "crops/orphan.jpg",
		}
		inserted, err = store.InsertFace(ctx, orphan)
		if err != nil {
			t.Fatalf("Failed to insert orphan face: %v", err)
		}
		if !inserted {
			t.Error("Expected orphan face inserted")
		}

		all, err := store.GetAllFaces(ctx)
		if err != nil {
			t.Fatalf("Failed to list faces: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("Expected 2 faces, got %d", len(all))
		}
		var got *database.StoredFaceInfo
		for i := range all {
			if all[i].CropPath == "crops/f1.jpg" {
				got = &all[i]
			}
		}
		if got == nil {
			t.Fatal("Inserted face not found")
		}
		if got.ImageID == nil || *got.ImageID != imageID {
			t.Errorf("Expected image id %d, got %v", imageID, got.ImageID)
		}
		if got.BBox.W != 30 || got.BBox.H != 40 {
			t.Errorf("Bounding box lost: %+v", got.BBox)
		}
		if len(got.Embedding) != database.EmbeddingDim {
			t.Errorf("Expected %d-d embedding, got %d", database.EmbeddingDim, len(got.Embedding))
		}
	})

	t.Run("FindSimilarFaces", func(t *testing.T) {
		query := make([]float32, database.EmbeddingDim)
		query[0] = 1

		found, distances, err := store.FindSimilarFaces(ctx, query, 5)
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(found) != 1 {
			t.Fatalf("Expected only the embedded face, got %d", len(found))
		}
		if found[0].CropPath != "crops/f1.jpg" {
			t.Errorf("Unexpected match: %+v", found[0])
		}
		if distances[0] > 1e-6 {
			t.Errorf("Expected ~0 distance, got %f", distances[0])
		}
	})

	t.Run("MarkImagesWithFaces", func(t *testing.T) {
		n, err := store.MarkImagesWithFaces(ctx)
		if err != nil {
			t.Fatalf("Failed to mark images: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 image flagged, got %d", n)
		}

		var flagged bool
		err = pool.DB().QueryRowContext(ctx,
			"SELECT has_faces FROM extracted_images WHERE image_path_r2 = 'images/p1.png'").Scan(&flagged)
		if err != nil {
			t.Fatalf("Failed to read flag: %v", err)
		}
		if !flagged {
			t.Error("Expected has_faces set on the referenced image")
		}

		// Second call finds nothing left to flag.
		n, err = store.MarkImagesWithFaces(ctx)
		if err != nil {
			t.Fatalf("Failed to re-mark images: %v", err)
		}
		if n != 0 {
			t.Errorf("Expected 0 on second pass, got %d", n)
		}
	})

	t.Run("Counts", func(t *testing.T) {
		counts, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if counts.Documents != 3 || counts.Images != 2 || counts.Clusters != 4 || counts.Faces != 2 {
			t.Errorf("Unexpected counts: %+v", counts)
		}
	})
}
