package gen

// Clamp v to the inclusive range [low, high]
func Clamp[T Ordered](v, low, high T) T {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
