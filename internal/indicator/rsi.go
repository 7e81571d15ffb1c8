package indicator

// RSI computes the Relative Strength Index using Wilder's smoothing.
// The first valid value sits at index `period`, seeded from simple averages
// of the first `period` deltas; later values use exponential smoothing.
// RSI = 100 - 100/(1 + avgGain/avgLoss); a zero avgLoss yields 100.
func RSI(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period <= 0 || len(data) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := data[i] - data[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(data); i++ {
		delta := data[i] - data[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
