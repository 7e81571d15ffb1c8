package model

import "time"

// Candle represents a single OHLCV candle from the REST history endpoint.
type Candle struct {
	Code   string    `json:"code"`
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
