package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps an in-memory HNSW graph over stored face
// embeddings for the similar-face API. Built once at server startup
// from the faces table; the store itself remains the source of truth.
type HNSWIndex struct {
	graph    *hnsw.Graph[int64]
	idToFace map[int64]*StoredFaceInfo
	mu       sync.RWMutex
}

// NewHNSWIndex creates a new empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToFace: make(map[int64]*StoredFaceInfo),
	}
}

// Build populates the index from face rows. Faces without an
// embedding are skipped: they cannot participate in similarity
// search.
func (h *HNSWIndex) Build(faces []StoredFaceInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToFace = make(map[int64]*StoredFaceInfo, len(faces))
	if len(faces) == 0 {
		h.graph = nil
		return nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for i := range faces {
		face := &faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(face.ID, face.Embedding))
		h.idToFace[face.ID] = face
	}

	h.graph = g
	return nil
}

// Search finds the k nearest faces to the query embedding, returning
// ids and cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)

	ids := make([]int64, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		if len(n.Value) > 0 {
			distances[i] = CosineDistance(query, n.Value)
		}
	}
	return ids, distances, nil
}

// Face returns the indexed face for an id, or nil.
func (h *HNSWIndex) Face(id int64) *StoredFaceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToFace[id]
}

// Count returns the number of indexed faces.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToFace)
}
