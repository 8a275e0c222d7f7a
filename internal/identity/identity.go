// Package identity loads the reference set of known persons used to
// label face clusters. The reference directory holds one subdirectory
// per identity, each containing embedding sidecar files written by
// the external detector for that person's reference photos.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reference is a named known person with the arithmetic mean of their
// reference-photo embeddings. A mean embedding is only meaningful
// within one embedding-model version, so references are rebuilt per
// run and never persisted.
type Reference struct {
	Name   string
	Mean   []float32
	Photos int
}

// Set holds references in load order. The order matters: when a
// cluster centroid ties between two references at the maximum
// similarity, the first reference seen wins.
type Set struct {
	refs []Reference
	dim  int
}

// sidecar is one detector embedding file for a reference photo.
type sidecar struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
}

// References returns the references in load order.
func (s *Set) References() []Reference {
	if s == nil {
		return nil
	}
	return s.refs
}

// Len returns the number of loaded references.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// Dim returns the embedding dimensionality, or 0 for an empty set.
func (s *Set) Dim() int {
	if s == nil {
		return 0
	}
	return s.dim
}

// NewSet builds a set from pre-computed references, preserving order.
// Useful for tests and for callers that compute means elsewhere.
func NewSet(refs []Reference) (*Set, error) {
	s := &Set{}
	for _, r := range refs {
		if len(r.Mean) == 0 {
			continue
		}
		if s.dim == 0 {
			s.dim = len(r.Mean)
		} else if len(r.Mean) != s.dim {
			return nil, fmt.Errorf("reference %q has dimension %d, set has %d", r.Name, len(r.Mean), s.dim)
		}
		s.refs = append(s.refs, r)
	}
	return s, nil
}

// LoadDirectory reads the reference tree. Identity subdirectories are
// visited in sorted order to keep the tie-break policy deterministic.
// Directory names use underscores for spaces ("Jane_Doe"). Identities
// with no usable sidecars are skipped silently; a sidecar whose
// dimension differs from the rest of the tree is a contract violation.
// wantDim of 0 accepts whatever dimension the first sidecar declares.
func LoadDirectory(root string, wantDim int) (*Set, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading reference directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	set := &Set{dim: wantDim}
	for _, dirName := range names {
		ref, err := loadIdentity(filepath.Join(root, dirName), set)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", dirName, err)
		}
		if ref == nil {
			continue // No usable reference photos.
		}
		ref.Name = DisplayName(dirName)
		set.refs = append(set.refs, *ref)
	}
	return set, nil
}

// loadIdentity averages all sidecar embeddings under one identity
// directory. Returns nil when the directory has no usable sidecars.
func loadIdentity(dir string, set *Set) (*Reference, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing sidecars: %w", err)
	}
	sort.Strings(matches)

	var (
		sum   []float32
		count int
	)
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		var sc sidecar
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
		if len(sc.Embedding) == 0 {
			continue // Detector found no face in that reference photo.
		}
		if set.dim == 0 {
			set.dim = len(sc.Embedding)
		} else if len(sc.Embedding) != set.dim {
			return nil, fmt.Errorf("%s: embedding dimension %d does not match %d",
				filepath.Base(path), len(sc.Embedding), set.dim)
		}
		if sum == nil {
			sum = make([]float32, set.dim)
		}
		for i, v := range sc.Embedding {
			sum[i] += v
		}
		count++
	}

	if count == 0 {
		return nil, nil
	}
	for i := range sum {
		sum[i] /= float32(count)
	}
	return &Reference{Mean: sum, Photos: count}, nil
}

// DisplayName converts a reference directory name to a display label
// ("Jane_Doe" -> "Jane Doe").
func DisplayName(dirName string) string {
	return strings.ReplaceAll(dirName, "_", " ")
}
