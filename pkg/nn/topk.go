package nn

import (
	"slices"

	"github.com/chewxy/math32"
)

// ClassScore is one element of a model's output vector
type ClassScore struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// TopK returns the k highest scores, in descending order.
// Ties are broken by index, so the lower index comes first.
// If k is larger than len(scores), all scores are returned. If k is negative, or
// scores is empty, the result is empty. NaN scores rank below all numbers.
// The input is not modified.
func TopK(scores []float32, k int) []ClassScore {
	if k <= 0 || len(scores) == 0 {
		return []ClassScore{}
	}
	all := make([]ClassScore, len(scores))
	for i, s := range scores {
		all[i] = ClassScore{Index: i, Score: s}
	}
	slices.SortStableFunc(all, func(a, b ClassScore) int {
		return compareDescending(a.Score, b.Score)
	})
	k = min(k, len(all))
	return all[:k:k]
}

func compareDescending(a, b float32) int {
	aNaN := math32.IsNaN(a)
	bNaN := math32.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
