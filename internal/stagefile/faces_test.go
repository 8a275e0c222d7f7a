package stagefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chatfiles/docpipe/internal/cluster"
)

func TestReadFacesFile(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"total_faces": 2,
		"processed_at": "2026-08-01T12:00:00Z",
		"faces": [
			{"face_id": "f1", "source_image": "img/p1.png", "bbox": {"x": 1, "y": 2, "w": 30, "h": 40},
			 "confidence": 0.9, "crop_path": "crops/f1.jpg", "embedding_idx": 0},
			{"face_id": "f2", "source_image": "img/p2.png", "bbox": {"x": 5, "y": 6, "w": 70, "h": 80},
			 "confidence": 0.7, "crop_path": "crops/f2.jpg", "embedding_idx": 1}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, FacesFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := ReadFacesFile(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.TotalFaces != 2 || len(f.Faces) != 2 {
		t.Fatalf("unexpected faces file: %+v", f)
	}
	if f.Faces[0].FaceID != "f1" || f.Faces[0].BBox.W != 30 || f.Faces[1].EmbeddingIndex != 1 {
		t.Errorf("unexpected observations: %+v", f.Faces)
	}
}

func TestReadFacesFile_Missing(t *testing.T) {
	if _, err := ReadFacesFile(t.TempDir()); err == nil {
		t.Error("expected error for missing faces.json")
	}
}

func TestClustersFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	label := "Jane Doe"
	confidence := 0.93
	result := &cluster.Result{
		Clusters: []cluster.Cluster{
			{
				ClusterID:       "0",
				Label:           &label,
				IsKnownPerson:   true,
				MatchConfidence: &confidence,
				FaceCount:       2,
				SampleFacePath:  "crops/f1.jpg",
				FaceIDs:         []string{"f1", "f2"},
			},
			{
				ClusterID:      "singleton_2",
				FaceCount:      1,
				SampleFacePath: "crops/f3.jpg",
				FaceIDs:        []string{"f3"},
			},
		},
		TotalFaces:      3,
		TotalClusters:   2,
		KnownPersons:    1,
		UnknownClusters: 1,
	}

	if err := WriteClustersFile(dir, result); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadClustersFile(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TotalClusters != 2 || got.KnownPersons != 1 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if got.Clusters[0].Label == nil || *got.Clusters[0].Label != "Jane Doe" {
		t.Errorf("label lost in round trip: %+v", got.Clusters[0])
	}
	if got.Clusters[1].Label != nil || got.Clusters[1].MatchConfidence != nil {
		t.Errorf("nil fields must stay nil: %+v", got.Clusters[1])
	}
}

func TestReadClustersFile_AbsentIsNotAnError(t *testing.T) {
	got, err := ReadClustersFile(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result for missing clusters.json, got %+v", got)
	}
}
