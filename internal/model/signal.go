package model

import (
	"encoding/json"
	"time"
)

// SignalAction is a classified trading recommendation.
type SignalAction string

const (
	SignalBuy  SignalAction = "buy"
	SignalSell SignalAction = "sell"
	SignalHold SignalAction = "hold"
)

// IndicatorResult is the output of a signal-producing indicator wrapper.
// Ephemeral: recomputed per evaluation, never persisted.
type IndicatorResult struct {
	Value    float64      `json:"value"`
	Signal   SignalAction `json:"signal"`
	Strength float64      `json:"strength"` // [0,1]
}

// Hold is the neutral result returned when there is not enough data.
// Callers treat it as a first-class outcome, not an error.
func Hold(value float64) IndicatorResult {
	return IndicatorResult{Value: value, Signal: SignalHold, Strength: 0}
}

// TradingSignal is an emitted, confidence-gated signal for one instrument.
type TradingSignal struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Code       string                     `json:"code"`
	Signal     SignalAction               `json:"signal"`
	Confidence float64                    `json:"confidence"` // [0,1]
	Price      float64                    `json:"price"`
	Reason     string                     `json:"reason"`
	Breakdown  map[string]IndicatorResult `json:"breakdown,omitempty"`
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *TradingSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
