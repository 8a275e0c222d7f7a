package stagefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatfiles/docpipe/internal/cluster"
	"github.com/chatfiles/docpipe/internal/faces"
)

// Standard artifact names inside a face-detection output directory.
const (
	FacesFileName      = "faces.json"
	ClustersFileName   = "clusters.json"
	EmbeddingsNPYName  = "embeddings.npy"
	EmbeddingsJSONName = "embeddings.json"
)

// FacesFile is the detection stage's face list artifact.
type FacesFile struct {
	TotalFaces  int                `json:"total_faces"`
	ProcessedAt string             `json:"processed_at"`
	Faces       []faces.Observation `json:"faces"`
}

// ReadFacesFile loads faces.json from a detection output directory.
func ReadFacesFile(facesDir string) (*FacesFile, error) {
	data, err := os.ReadFile(filepath.Join(facesDir, FacesFileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FacesFileName, err)
	}
	var f FacesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FacesFileName, err)
	}
	return &f, nil
}

// ReadClustersFile loads clusters.json from a clustering output
// directory. Returns nil without error when the file does not exist;
// a run without clustering output still loads documents and images.
func ReadClustersFile(facesDir string) (*cluster.Result, error) {
	data, err := os.ReadFile(filepath.Join(facesDir, ClustersFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ClustersFileName, err)
	}
	var r cluster.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ClustersFileName, err)
	}
	return &r, nil
}

// WriteClustersFile writes the clustering result artifact.
func WriteClustersFile(facesDir string, result *cluster.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding clusters: %w", err)
	}
	path := filepath.Join(facesDir, ClustersFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ClustersFileName, err)
	}
	return nil
}

// ReadEmbeddings loads the detector's embedding array, preferring the
// npy artifact and falling back to JSON. Returns nil without error
// when neither exists.
func ReadEmbeddings(facesDir string) ([][]float32, error) {
	npyPath := filepath.Join(facesDir, EmbeddingsNPYName)
	if _, err := os.Stat(npyPath); err == nil {
		return ReadEmbeddingsNPY(npyPath)
	}

	jsonPath := filepath.Join(facesDir, EmbeddingsJSONName)
	if _, err := os.Stat(jsonPath); err == nil {
		return ReadEmbeddingsJSON(jsonPath)
	}
	return nil, nil
}

// ReadEmbeddingsJSON loads a JSON array-of-arrays embedding file.
func ReadEmbeddingsJSON(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading embeddings: %w", err)
	}
	var embeddings [][]float32
	if err := json.Unmarshal(data, &embeddings); err != nil {
		return nil, fmt.Errorf("parsing embeddings: %w", err)
	}
	return embeddings, nil
}
