package indicator

import "math"

// Bollinger computes Bollinger Bands: middle = SMA(period), bands =
// middle ± mult × population standard deviation over the same window.
// All three series are NaN before index period-1.
func Bollinger(data []float64, period int, mult float64) (upper, middle, lower []float64) {
	middle = SMA(data, period)
	upper = nanSeries(len(data))
	lower = nanSeries(len(data))
	if period <= 0 || len(data) < period {
		return upper, middle, lower
	}

	for i := period - 1; i < len(data); i++ {
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := data[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + mult*sd
		lower[i] = mean - mult*sd
	}
	return upper, middle, lower
}
