package database

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"scale invariant", []float32{2, 0}, []float32{5, 0}, 0},
		{"mismatched lengths", []float32{1, 0}, []float32{1}, 2},
		{"empty", nil, nil, 2},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineDistance(tc.a, tc.b); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("CosineDistance = %f, expected %f", got, tc.expected)
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("expected similarity 1, got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("expected similarity 0, got %f", got)
	}
}
