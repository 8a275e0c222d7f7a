// Package cluster groups face embeddings into identity clusters and
// labels them against a reference set of known persons.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/chatfiles/docpipe/internal/faces"
	"github.com/chatfiles/docpipe/internal/identity"
)

// Default thresholds, matching the detection stage's calibration for
// 512-d face embeddings.
const (
	DefaultSimilarityThreshold  = 0.5
	DefaultKnownPersonThreshold = 0.6
	defaultMinClusterSize       = 2
)

// Options controls the clustering run.
type Options struct {
	// SimilarityThreshold is the minimum cosine similarity for two
	// faces to be mutually reachable. The boundary is exclusive:
	// similarity equal to the threshold does not connect.
	SimilarityThreshold float64

	// KnownPersonThreshold is the minimum cosine similarity between a
	// cluster centroid and a reference mean for the cluster to be
	// labeled. Exclusive boundary as well.
	KnownPersonThreshold float64

	// MinClusterSize is the minimum neighborhood size for a dense
	// cluster. Faces below it become singleton clusters.
	MinClusterSize int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold:  DefaultSimilarityThreshold,
		KnownPersonThreshold: DefaultKnownPersonThreshold,
		MinClusterSize:       defaultMinClusterSize,
	}
}

// Cluster is a group of face observations believed to be the same
// person. Immutable once emitted; a re-run regenerates clusters
// wholesale.
type Cluster struct {
	ClusterID       string   `json:"cluster_id"`
	Label           *string  `json:"label"`
	IsKnownPerson   bool     `json:"is_known_person"`
	MatchConfidence *float64 `json:"match_confidence"`
	FaceCount       int      `json:"face_count"`
	SampleFacePath  string   `json:"sample_face"`
	FaceIDs         []string `json:"face_ids"`
}

// Result is the output of one full clustering run.
type Result struct {
	Clusters        []Cluster `json:"clusters"`
	TotalFaces      int       `json:"total_faces"`
	TotalClusters   int       `json:"total_clusters"`
	KnownPersons    int       `json:"known_persons"`
	UnknownClusters int       `json:"unknown_clusters"`
}

// Run partitions the batch into identity clusters and matches each
// cluster centroid against the reference set. Every face ends up in
// exactly one cluster; faces not densely reachable from another face
// become singleton clusters. An empty batch yields an empty result.
func Run(batch *faces.Batch, refs *identity.Set, opts Options) (*Result, error) {
	if batch == nil || batch.Len() == 0 {
		return &Result{Clusters: []Cluster{}}, nil
	}

	if refs != nil && refs.Dim() > 0 && refs.Dim() != batch.Dim() {
		return nil, fmt.Errorf("reference embedding dimension %d does not match batch dimension %d",
			refs.Dim(), batch.Dim())
	}

	normalized := normalizeAll(batch.Embeddings())
	eps := 1 - opts.SimilarityThreshold
	labels := dbscan(normalized, eps, opts.MinClusterSize)

	groups := groupByLabel(batch.Observations(), labels)

	clusters := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		centroid := centroidOf(batch, g.members)
		c := Cluster{
			ClusterID:      g.key,
			FaceCount:      len(g.members),
			SampleFacePath: g.members[0].CropPath,
			FaceIDs:        faceIDs(g.members),
		}
		if refs != nil {
			if name, score, ok := matchReference(centroid, refs, opts.KnownPersonThreshold); ok {
				c.Label = &name
				c.MatchConfidence = &score
				c.IsKnownPerson = true
			}
		}
		clusters = append(clusters, c)
	}

	// Known persons first, then larger clusters first. Presentation
	// order only; the partition itself is unaffected.
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].IsKnownPerson != clusters[j].IsKnownPerson {
			return clusters[i].IsKnownPerson
		}
		return clusters[i].FaceCount > clusters[j].FaceCount
	})

	result := &Result{
		Clusters:      clusters,
		TotalFaces:    batch.Len(),
		TotalClusters: len(clusters),
	}
	for _, c := range clusters {
		if c.IsKnownPerson {
			result.KnownPersons++
		} else {
			result.UnknownClusters++
		}
	}
	return result, nil
}

// group is an intermediate cluster before labeling.
type group struct {
	key     string
	members []faces.Observation
}

// groupByLabel collects observations per dbscan label. Dense clusters
// keep their numeric key; noise points each become a singleton keyed
// by their input index.
func groupByLabel(observations []faces.Observation, labels []int) []group {
	var order []group
	denseIdx := make(map[int]int)

	for i, obs := range observations {
		if labels[i] == noiseLabel {
			order = append(order, group{
				key:     fmt.Sprintf("singleton_%d", i),
				members: []faces.Observation{obs},
			})
			continue
		}
		idx, ok := denseIdx[labels[i]]
		if !ok {
			order = append(order, group{key: fmt.Sprintf("%d", labels[i])})
			idx = len(order) - 1
			denseIdx[labels[i]] = idx
		}
		order[idx].members = append(order[idx].members, obs)
	}
	return order
}

// centroidOf computes the arithmetic mean of the raw (un-normalized)
// member embeddings. The centroid is deliberately not re-normalized;
// reference matching normalizes inside the similarity computation.
func centroidOf(batch *faces.Batch, members []faces.Observation) []float32 {
	centroid := make([]float32, batch.Dim())
	for _, obs := range members {
		emb := batch.Embedding(obs.EmbeddingIndex)
		for i, v := range emb {
			centroid[i] += v
		}
	}
	n := float32(len(members))
	for i := range centroid {
		centroid[i] /= n
	}
	return centroid
}

// matchReference finds the reference identity with the highest cosine
// similarity to the centroid, strictly above the threshold. Ties at
// the maximum resolve to the first reference seen; the Set preserves
// load order so the policy is deterministic.
func matchReference(centroid []float32, refs *identity.Set, threshold float64) (string, float64, bool) {
	var (
		bestName  string
		bestScore float64
		found     bool
	)
	for _, ref := range refs.References() {
		sim := cosineSimilarity(centroid, ref.Mean)
		if sim > threshold && sim > bestScore {
			bestName = ref.Name
			bestScore = sim
			found = true
		}
	}
	return bestName, bestScore, found
}

// cosineSimilarity computes the cosine similarity of two raw vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// normalizeAll returns unit-L2 copies of the vectors. Inputs are
// never mutated. Zero vectors are left as zeros, which makes them
// unreachable from everything and therefore singletons.
func normalizeAll(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = normalize(v)
	}
	return out
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func faceIDs(members []faces.Observation) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.FaceID
	}
	return ids
}
