// Package signal maintains rolling price history per instrument and turns
// indicator output into confidence-scored trading signals.
//
// The Generator owns a bounded price history and a bounded signal log for
// every instrument it has seen. Evaluation is pure with respect to the
// history: it never mutates prices, and it only appends to the signal log
// when a signal actually clears the confidence gate.
package signal

import (
	"sync"
	"time"

	"papertraderv1/internal/indicator"
	"papertraderv1/internal/model"
)

const (
	// priceHistoryCap bounds per-instrument history; oldest entries evicted.
	priceHistoryCap = 100
	// signalHistoryCap bounds the per-instrument emitted-signal log.
	signalHistoryCap = 50
)

// PricePoint is one observed price with its receive timestamp.
type PricePoint struct {
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
}

// Generator evaluates configured indicator combinations over per-instrument
// price history. Safe for concurrent use.
type Generator struct {
	mu      sync.RWMutex
	cfg     model.TradingConfig
	history map[string][]PricePoint
	signals map[string][]model.TradingSignal
}

// NewGenerator creates a Generator with the given config snapshot.
func NewGenerator(cfg model.TradingConfig) *Generator {
	return &Generator{
		cfg:     cfg,
		history: make(map[string][]PricePoint),
		signals: make(map[string][]model.TradingSignal),
	}
}

// IngestPrice appends a price observation, evicting the oldest entry once
// the history cap is reached.
func (g *Generator) IngestPrice(code string, price float64, ts time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := append(g.history[code], PricePoint{Price: price, TS: ts})
	if len(h) > priceHistoryCap {
		h = h[len(h)-priceHistoryCap:]
	}
	g.history[code] = h
}

// History returns a copy of the price history for an instrument.
func (g *Generator) History(code string) []PricePoint {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make([]PricePoint, len(g.history[code]))
	copy(cp, g.history[code])
	return cp
}

// Signals returns a copy of the emitted-signal log for an instrument.
func (g *Generator) Signals(code string) []model.TradingSignal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make([]model.TradingSignal, len(g.signals[code]))
	copy(cp, g.signals[code])
	return cp
}

// Config returns the current config snapshot.
func (g *Generator) Config() model.TradingConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// UpdateConfig replaces the config snapshot. Price history is preserved, so
// the next evaluation immediately reflects the new window sizes.
func (g *Generator) UpdateConfig(cfg model.TradingConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

// Evaluate runs the configured algorithm for one instrument. Returns nil
// when there is not enough history or no signal clears the confidence gate;
// a nil result is a neutral outcome, not a failure.
func (g *Generator) Evaluate(code string) *model.TradingSignal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.evaluateLocked(code)
}

// EvaluateAll evaluates each instrument independently. Result order follows
// input order; instruments with no signal are skipped.
func (g *Generator) EvaluateAll(codes []string) []model.TradingSignal {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.TradingSignal, 0, len(codes))
	for _, code := range codes {
		if sig := g.evaluateLocked(code); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

func (g *Generator) evaluateLocked(code string) *model.TradingSignal {
	h := g.history[code]
	if len(h) < g.cfg.MaxPeriod() {
		return nil // not enough data yet
	}

	prices := make([]float64, len(h))
	for i, p := range h {
		prices[i] = p.Price
	}

	var (
		action     model.SignalAction
		confidence float64
		reason     string
		breakdown  map[string]model.IndicatorResult
	)

	switch g.cfg.Algorithm {
	case model.AlgoBollinger:
		res := indicator.BollingerSignal(prices, g.cfg.BollingerPeriod, g.cfg.BollingerMult)
		action, confidence = res.Signal, res.Strength
		reason = "bollinger band touch"
		breakdown = map[string]model.IndicatorResult{"bollinger": res}

	case model.AlgoStochastic:
		// Only close prices are tracked, so the oscillator runs with
		// high = low = close over the same window.
		res := indicator.StochasticSignal(prices, prices, prices, g.cfg.StochKPeriod, g.cfg.StochDPeriod)
		action, confidence = res.Signal, res.Strength
		reason = "stochastic zone/crossover"
		breakdown = map[string]model.IndicatorResult{"stochastic": res}

	default: // model.AlgoMARSI
		ma := indicator.MACrossoverSignal(prices, g.cfg.ShortPeriod, g.cfg.LongPeriod)
		rsi := indicator.RSISignal(prices, g.cfg.RSIPeriod, g.cfg.RSIBuyThreshold, g.cfg.RSISellThreshold)
		action, confidence, reason = combineMARSI(ma, rsi)
		breakdown = map[string]model.IndicatorResult{"ma_crossover": ma, "rsi": rsi}
	}

	if action == model.SignalHold || confidence < g.cfg.MinConfidence {
		return nil
	}

	sig := model.TradingSignal{
		Timestamp:  time.Now().UTC(),
		Code:       code,
		Signal:     action,
		Confidence: confidence,
		Price:      prices[len(prices)-1],
		Reason:     reason,
		Breakdown:  breakdown,
	}

	log := append(g.signals[code], sig)
	if len(log) > signalHistoryCap {
		log = log[len(log)-signalHistoryCap:]
	}
	g.signals[code] = log

	return &sig
}

// combineMARSI merges the MA-crossover and RSI results. Agreement averages
// the strengths; an MA signal with a neutral or disagreeing RSI is
// discounted x0.7; an RSI-only signal is discounted x0.5.
func combineMARSI(ma, rsi model.IndicatorResult) (model.SignalAction, float64, string) {
	switch {
	case ma.Signal != model.SignalHold && ma.Signal == rsi.Signal:
		return ma.Signal, (ma.Strength + rsi.Strength) / 2, "MA crossover and RSI agree"
	case ma.Signal != model.SignalHold:
		return ma.Signal, ma.Strength * 0.7, "MA crossover (RSI neutral or opposed)"
	case rsi.Signal != model.SignalHold:
		return rsi.Signal, rsi.Strength * 0.5, "RSI threshold (MA neutral)"
	}
	return model.SignalHold, 0, ""
}
