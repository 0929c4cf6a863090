package sona

import "math"

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Mismatched lengths and zero vectors yield 0 so callers on hot paths can
// degrade to neutral results instead of failing.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct returns the dot product of two vectors, 0 on length mismatch.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// MeanVector averages a set of equally sized vectors. Returns nil for empty
// input; vectors with a different length than the first are skipped.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	count := 0

	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i := range v {
			sum[i] += float64(v[i])
		}
		count++
	}

	if count == 0 {
		return nil
	}

	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(count))
	}
	return mean
}

// WeightedMeanVector averages vectors weighted by the given weights. Vectors
// and weights must align; non-positive total weight yields nil.
func WeightedMeanVector(vectors [][]float32, weights []float64) []float32 {
	if len(vectors) == 0 || len(vectors) != len(weights) {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	totalWeight := 0.0

	for i, v := range vectors {
		if len(v) != dim || weights[i] <= 0 {
			continue
		}
		for j := range v {
			sum[j] += float64(v[j]) * weights[i]
		}
		totalWeight += weights[i]
	}

	if totalWeight <= 0 {
		return nil
	}

	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / totalWeight)
	}
	return mean
}

// Softmax converts scores to a probability distribution. An empty input
// returns an empty slice.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return []float64{}
	}

	// Subtract the max for numerical stability.
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	exps := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		exps[i] = math.Exp(s - maxScore)
		sum += exps[i]
	}

	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// NormalizeVector scales a vector to unit length. Zero vectors are returned
// unchanged.
func NormalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
