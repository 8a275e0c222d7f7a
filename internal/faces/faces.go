// Package faces holds the face observation records produced by the
// external detection stage and the per-run accumulator that collects
// them together with their embedding vectors.
package faces

import (
	"errors"
	"fmt"
)

// BoundingBox is a face location in pixel space of the source image.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Validate checks that the box has non-negative origin and positive size.
func (b BoundingBox) Validate() error {
	if b.X < 0 || b.Y < 0 {
		return fmt.Errorf("bounding box origin must be non-negative, got (%d, %d)", b.X, b.Y)
	}
	if b.W <= 0 || b.H <= 0 {
		return fmt.Errorf("bounding box size must be positive, got %dx%d", b.W, b.H)
	}
	return nil
}

// Observation is one detected face instance. Created once by the
// detection stage and never mutated afterwards; clusters reference
// observations by FaceID but never own them.
type Observation struct {
	FaceID          string      `json:"face_id"`
	SourceImagePath string      `json:"source_image"`
	BBox            BoundingBox `json:"bbox"`
	Confidence      float64     `json:"confidence"`
	CropPath        string      `json:"crop_path"`
	EmbeddingIndex  int         `json:"embedding_idx"`
}

// Batch accumulates observations and their embedding vectors for one
// pipeline run. It replaces the process-global lists the detection
// stage would otherwise mutate: one Batch per run, single owner, not
// safe for concurrent use.
type Batch struct {
	observations []Observation
	embeddings   [][]float32
	dim          int
}

// ErrEmptyEmbedding is returned when an observation is added with a
// zero-length embedding vector.
var ErrEmptyEmbedding = errors.New("embedding must not be empty")

// NewBatch creates an empty accumulator.
func NewBatch() *Batch {
	return &Batch{}
}

// Add appends an observation and its embedding. The first embedding
// fixes the dimensionality of the batch; any later mismatch is an
// input-contract violation. The observation's EmbeddingIndex is
// assigned here.
func (b *Batch) Add(obs Observation, embedding []float32) error {
	if len(embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if b.dim == 0 {
		b.dim = len(embedding)
	} else if len(embedding) != b.dim {
		return fmt.Errorf("embedding dimension mismatch: batch has %d, face %q has %d",
			b.dim, obs.FaceID, len(embedding))
	}
	if err := obs.BBox.Validate(); err != nil {
		return fmt.Errorf("face %q: %w", obs.FaceID, err)
	}
	if obs.Confidence < 0 || obs.Confidence > 1 {
		return fmt.Errorf("face %q: confidence %f outside [0, 1]", obs.FaceID, obs.Confidence)
	}

	obs.EmbeddingIndex = len(b.embeddings)
	b.observations = append(b.observations, obs)
	b.embeddings = append(b.embeddings, embedding)
	return nil
}

// Len returns the number of accumulated observations.
func (b *Batch) Len() int {
	return len(b.observations)
}

// Dim returns the embedding dimensionality, or 0 for an empty batch.
func (b *Batch) Dim() int {
	return b.dim
}

// Observations returns the accumulated observations in insertion order.
func (b *Batch) Observations() []Observation {
	return b.observations
}

// Embedding returns the vector at the given index.
func (b *Batch) Embedding(idx int) []float32 {
	return b.embeddings[idx]
}

// Embeddings returns the parallel vector array.
func (b *Batch) Embeddings() [][]float32 {
	return b.embeddings
}

// FromParallel builds a batch from an observation list and a parallel
// embedding array, as read back from detector artifacts. Every
// observation must point at a valid embedding index.
func FromParallel(observations []Observation, embeddings [][]float32) (*Batch, error) {
	b := NewBatch()
	for _, obs := range observations {
		if obs.EmbeddingIndex < 0 || obs.EmbeddingIndex >= len(embeddings) {
			return nil, fmt.Errorf("face %q: embedding index %d out of range (have %d embeddings)",
				obs.FaceID, obs.EmbeddingIndex, len(embeddings))
		}
		if err := b.Add(obs, embeddings[obs.EmbeddingIndex]); err != nil {
			return nil, err
		}
	}
	return b, nil
}
