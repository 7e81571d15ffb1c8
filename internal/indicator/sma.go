package indicator

// SMA computes the Simple Moving Average over a trailing window.
// Result[i] is NaN for i < period-1. Uses a running sum for O(n) total work.
func SMA(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
