package cluster

// noiseLabel marks points not assigned to any dense cluster.
const noiseLabel = -1

// dbscan runs density-based clustering over unit-normalized vectors
// using cosine distance. A pair of points is reachable when their
// distance is strictly below eps (equivalently, similarity strictly
// above 1-eps). Returns a label per point: a dense cluster index
// starting at 0, or noiseLabel.
//
// The scan visits points in input order and assigns cluster indexes
// in discovery order, so the labeling is deterministic for a given
// input ordering.
func dbscan(vectors [][]float32, eps float64, minSamples int) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noiseLabel
	}

	visited := make([]bool, n)
	next := 0

	for i := range n {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minSamples {
			continue // Stays noise unless later absorbed by a core point.
		}

		labels[i] = next
		expandCluster(vectors, labels, visited, neighbors, next, eps, minSamples)
		next++
	}

	return labels
}

// expandCluster grows a cluster from a core point's neighborhood,
// absorbing border points and chaining through further core points.
func expandCluster(vectors [][]float32, labels []int, visited []bool, seeds []int, cluster int, eps float64, minSamples int) {
	for k := 0; k < len(seeds); k++ {
		j := seeds[k]

		if labels[j] == noiseLabel {
			labels[j] = cluster
		}
		if visited[j] {
			continue
		}
		visited[j] = true

		neighbors := regionQuery(vectors, j, eps)
		if len(neighbors) >= minSamples {
			seeds = append(seeds, neighbors...)
		}
	}
}

// regionQuery returns the indexes of all points within eps of point i,
// including i itself. The boundary is exclusive: distance must be
// strictly less than eps.
func regionQuery(vectors [][]float32, i int, eps float64) []int {
	var neighbors []int
	for j := range vectors {
		if cosineDistanceUnit(vectors[i], vectors[j]) < eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// cosineDistanceUnit computes 1 - dot(a, b) for unit-normalized
// vectors. Both inputs must already be L2-normalized.
func cosineDistanceUnit(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot > 1 {
		dot = 1
	}
	if dot < -1 {
		dot = -1
	}
	return 1 - dot
}
