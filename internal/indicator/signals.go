package indicator

import (
	"math"

	"papertraderv1/internal/model"
)

// MACrossoverSignal detects short/long EMA crossovers over the last two
// samples. A fresh crossing is floored at strength 0.3; a still-aligned
// continuation emits at 0.2; otherwise hold. Strength above the floor
// scales with the normalized distance between the two EMAs.
func MACrossoverSignal(data []float64, shortPeriod, longPeriod int) model.IndicatorResult {
	if len(data) < longPeriod+1 {
		return model.Hold(0)
	}

	shortEMA := EMA(data, shortPeriod)
	longEMA := EMA(data, longPeriod)
	n := len(data)

	curS, prevS := shortEMA[n-1], shortEMA[n-2]
	curL, prevL := longEMA[n-1], longEMA[n-2]
	diff := curS - curL

	// Normalized separation: 2% apart saturates at full strength.
	strength := 0.0
	if curL != 0 {
		strength = clamp01(math.Abs(diff) / math.Abs(curL) * 50)
	}

	switch {
	case prevS <= prevL && curS > curL:
		return model.IndicatorResult{Value: diff, Signal: model.SignalBuy, Strength: math.Max(0.3, strength)}
	case prevS >= prevL && curS < curL:
		return model.IndicatorResult{Value: diff, Signal: model.SignalSell, Strength: math.Max(0.3, strength)}
	case curS > curL:
		return model.IndicatorResult{Value: diff, Signal: model.SignalBuy, Strength: 0.2}
	case curS < curL:
		return model.IndicatorResult{Value: diff, Signal: model.SignalSell, Strength: 0.2}
	}
	return model.Hold(diff)
}

// RSISignal classifies the latest RSI value against buy/sell thresholds.
// Defaults in TradingConfig are 35/65; with those, buy strength is
// (35-RSI)/35 and sell strength is (RSI-65)/35.
func RSISignal(data []float64, period int, buyThreshold, sellThreshold float64) model.IndicatorResult {
	if len(data) <= period {
		return model.Hold(0)
	}

	rsi := last(RSI(data, period))
	if math.IsNaN(rsi) {
		return model.Hold(0)
	}

	switch {
	case rsi <= buyThreshold:
		return model.IndicatorResult{
			Value:    rsi,
			Signal:   model.SignalBuy,
			Strength: clamp01((buyThreshold - rsi) / buyThreshold),
		}
	case rsi >= sellThreshold:
		return model.IndicatorResult{
			Value:    rsi,
			Signal:   model.SignalSell,
			Strength: clamp01((rsi - sellThreshold) / (100 - sellThreshold)),
		}
	}
	return model.Hold(rsi)
}

// BollingerSignal signals a buy when price touches or penetrates the lower
// band and a sell at the upper band, with strength proportional to the
// penetration depth relative to the band price, capped at 1.
func BollingerSignal(data []float64, period int, mult float64) model.IndicatorResult {
	if len(data) < period {
		return model.Hold(0)
	}

	upper, _, lower := Bollinger(data, period, mult)
	price := data[len(data)-1]
	up, lo := last(upper), last(lower)
	if math.IsNaN(up) || math.IsNaN(lo) {
		return model.Hold(price)
	}

	switch {
	case price <= lo:
		return model.IndicatorResult{
			Value:    price,
			Signal:   model.SignalBuy,
			Strength: clamp01((lo - price) / lo * 100),
		}
	case price >= up:
		return model.IndicatorResult{
			Value:    price,
			Signal:   model.SignalSell,
			Strength: clamp01((price - up) / up * 100),
		}
	}
	return model.Hold(price)
}

// StochasticSignal signals when both %K and %D sit in the oversold (<=20)
// or overbought (>=80) zone, or on a %K/%D crossover through the 50
// midline. Crossover strength is floored at 0.5.
func StochasticSignal(high, low, close []float64, kPeriod, dPeriod int) model.IndicatorResult {
	if len(close) < kPeriod+dPeriod {
		return model.Hold(0)
	}

	kSeries, dSeries := Stochastic(high, low, close, kPeriod, dPeriod)
	n := len(close)
	k, d := kSeries[n-1], dSeries[n-1]
	prevK, prevD := kSeries[n-2], dSeries[n-2]
	if math.IsNaN(k) || math.IsNaN(d) {
		return model.Hold(0)
	}

	switch {
	case k <= 20 && d <= 20:
		avg := (k + d) / 2
		return model.IndicatorResult{Value: k, Signal: model.SignalBuy, Strength: clamp01((20 - avg) / 20)}
	case k >= 80 && d >= 80:
		avg := (k + d) / 2
		return model.IndicatorResult{Value: k, Signal: model.SignalSell, Strength: clamp01((avg - 80) / 20)}
	}

	if !math.IsNaN(prevK) && !math.IsNaN(prevD) {
		if prevK <= prevD && k > d && k >= 50 && prevK < 50 {
			return model.IndicatorResult{Value: k, Signal: model.SignalBuy, Strength: math.Max(0.5, clamp01((k-50)/50))}
		}
		if prevK >= prevD && k < d && k <= 50 && prevK > 50 {
			return model.IndicatorResult{Value: k, Signal: model.SignalSell, Strength: math.Max(0.5, clamp01((50-k)/50))}
		}
	}
	return model.Hold(k)
}
