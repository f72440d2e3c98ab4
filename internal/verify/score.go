package verify

import "math"

// Default decision constants.
const (
	DefaultDistanceCutoff  = 0.5
	DefaultVerifyThreshold = 4.5
)

// Thresholds controls how template distances turn into a decision.
type Thresholds struct {
	// DistanceCutoff is the exclusive upper bound on distance for a template to count.
	DistanceCutoff float64
	// VerifyThreshold is the inclusive minimum score for a positive decision.
	VerifyThreshold float64
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DistanceCutoff:  DefaultDistanceCutoff,
		VerifyThreshold: DefaultVerifyThreshold,
	}
}

// CosineDistance computes 1 - cosine similarity of two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
// Vectors of different length, empty vectors and zero vectors get the maximum distance.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// floating point error can push similarity slightly outside [-1, 1]
	similarity = max(-1, min(1, similarity))
	return 1 - similarity
}

// Contribution returns how much a template at distance d adds to the score.
func (t Thresholds) Contribution(d float64) float64 {
	if d >= t.DistanceCutoff {
		return 0
	}
	s := 1 - d
	return s * s
}

// Verified reports whether score reaches the verification threshold.
func (t Thresholds) Verified(score float64) bool {
	return score >= t.VerifyThreshold
}

// Score sums the contributions of every template against the query.
// Templates whose dimension differs from the query are skipped and counted in mismatched.
func (t Thresholds) Score(query []float32, templates [][]float32) (score float64, mismatched int) {
	for _, tpl := range templates {
		if len(tpl) != len(query) {
			mismatched++
			continue
		}
		score += t.Contribution(CosineDistance(query, tpl))
	}
	return score, mismatched
}
