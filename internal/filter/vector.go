// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import "math"

// Cosine returns the cosine similarity of two vectors, or 0 when either
// is empty, mismatched, or zero-length in magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
