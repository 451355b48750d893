package search

import (
	"math"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Scorers assume equal-length vectors; length is validated before scoring.
// Every metric is expressed on a higher-is-more-similar scale so ranking,
// thresholds, and result shapes stay uniform.

// cosineSimilarity computes the cosine of the angle between two vectors.
//
// Returns a value between -1 and 1, where:
//   - 1 means vectors point the same way
//   - 0 means vectors are orthogonal (unrelated)
//   - -1 means vectors are opposite
func cosineSimilarity(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	// Avoid division by zero
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// euclideanSimilarity inverts the Euclidean distance into 1/(1+d): identical
// vectors score 1, the score falls toward 0 as distance grows, and it never
// goes negative.
func euclideanSimilarity(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return 1 / (1 + math.Sqrt(sum))
}

// dotProduct computes Σ(ai × bi). Unbounded; meaningful for normalized
// embeddings.
func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// scorerFor returns the scoring function for a metric, or nil for an
// unknown one.
func scorerFor(metric types.Metric) func(a, b []float64) float64 {
	switch metric {
	case types.MetricCosine:
		return cosineSimilarity
	case types.MetricEuclidean:
		return euclideanSimilarity
	case types.MetricDotProduct:
		return dotProduct
	}
	return nil
}
