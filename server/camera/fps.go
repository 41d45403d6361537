package camera

import (
	"math"
	"slices"
	"time"
)

// EstimateFPS estimates the frame rate of a source from a set of consecutive frame intervals.
// The median interval is used, so that an occasional stall doesn't skew the result.
// Rates of 1 FPS and above are rounded to one decimal place. Slower sources are
// rounded to 1/N, which is how cameras and replay sources are usually configured.
// Returns 0 if there is nothing to go on.
func EstimateFPS(frameIntervals []time.Duration) float64 {
	if len(frameIntervals) == 0 {
		return 0
	}
	sorted := slices.Clone(frameIntervals)
	slices.Sort(sorted)
	mid := sorted[len(sorted)/2]
	if mid <= 0 {
		return 0
	}
	fps := float64(time.Second) / float64(mid)
	if fps >= 0.95 {
		return math.Round(fps*10) / 10
	}
	return 1 / math.Round(1/fps)
}
