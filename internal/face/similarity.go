package face

import (
	"fmt"
	"math"
)

// EmbeddingDim is the fixed length of the face embedding vector.
const EmbeddingDim = 512

// MatchThreshold is the cosine similarity above which two embeddings are
// considered the same identity.
const MatchThreshold = 0.7

// Normalize scales vec to unit Euclidean norm in place and returns it.
// A zero-norm vector is left unchanged (the norm is substituted with 1.0).
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1.0
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// CosineSimilarity returns the dot product of two unit-normalized vectors.
// Both inputs must already be normalized and of equal length.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}

// Match reports whether a similarity score clears the match threshold.
func Match(similarity float64) bool {
	return similarity >= MatchThreshold
}
