package match

import "math"

// Cosine computes the cosine similarity of two embedding vectors, clamped
// to a minimum of 0: for this domain a negative similarity means "no match",
// the sign itself carries no meaning. Vectors of different lengths (or an
// all-zero vector) compare as 0 rather than erroring, since embeddings are
// only comparable when both sides supply the expected dimensionality.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return math.Max(0, dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
