package indicator

// EMA computes the Exponential Moving Average, seeded with the first
// observation. Recurrence: ema[i] = price[i]*k + ema[i-1]*(1-k), k = 2/(period+1).
func EMA(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period <= 0 || len(data) == 0 {
		return out
	}

	k := 2.0 / float64(period+1)
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = data[i]*k + out[i-1]*(1-k)
	}
	return out
}
