package database

// EmbeddingDim is the detector's fixed face embedding dimension; the
// faces.embedding vector column is sized to it.
const EmbeddingDim = 512

// HNSW index parameters for 512-dim face embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates
	// from HNSW to ensure enough remain after distance filtering.
	HNSWSearchMultiplier = 3
)
