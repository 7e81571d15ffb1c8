// Package indicator provides technical indicator calculations over price series.
//
// All functions are pure and stateless: they take an ordered slice of prices
// (oldest first) and return either a transformed series of the same length,
// with math.NaN() at indices where the window is not yet filled, or a single
// model.IndicatorResult for the signal-producing variants.
//
// Too little data is a first-class, non-exceptional state: signal variants
// return a neutral zero-strength hold instead of erroring.
package indicator

import "math"

// nanSeries returns a slice of n NaN values.
func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// last returns the final value of a series, or NaN for an empty one.
func last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}
