package indicator

// MACD computes the Moving Average Convergence Divergence lines:
// macd = EMA(fast) - EMA(slow), signalLine = EMA(macd, signalPeriod),
// histogram = macd - signalLine.
func MACD(data []float64, fast, slow, signalPeriod int) (macd, signalLine, histogram []float64) {
	fastEMA := EMA(data, fast)
	slowEMA := EMA(data, slow)

	macd = make([]float64, len(data))
	for i := range data {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine = EMA(macd, signalPeriod)

	histogram = make([]float64, len(data))
	for i := range data {
		histogram[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, histogram
}
