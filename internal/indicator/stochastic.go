package indicator

// Stochastic computes the Stochastic Oscillator:
// %K = (close - lowestLow(kPeriod)) / (highestHigh(kPeriod) - lowestLow(kPeriod)) * 100,
// %D = SMA(%K, dPeriod). A flat window (high == low) yields a neutral 50.
// The three input series must be equal length.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) (k, d []float64) {
	n := len(close)
	k = nanSeries(n)
	d = nanSeries(n)
	if kPeriod <= 0 || dPeriod <= 0 || n < kPeriod || len(high) != n || len(low) != n {
		return k, d
	}

	for i := kPeriod - 1; i < n; i++ {
		hh, ll := high[i], low[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			if high[j] > hh {
				hh = high[j]
			}
			if low[j] < ll {
				ll = low[j]
			}
		}
		if hh == ll {
			k[i] = 50.0
		} else {
			k[i] = (close[i] - ll) / (hh - ll) * 100.0
		}
	}

	// %D: SMA over the valid portion of %K
	for i := kPeriod - 2 + dPeriod; i < n; i++ {
		sum := 0.0
		for j := i - dPeriod + 1; j <= i; j++ {
			sum += k[j]
		}
		d[i] = sum / float64(dPeriod)
	}
	return k, d
}
