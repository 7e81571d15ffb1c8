package model

import (
	"encoding/json"
	"time"
)

// Ticker represents a real-time price snapshot for a single instrument,
// delivered either by the push feed or the REST snapshot endpoint.
type Ticker struct {
	Code             string    `json:"code"`
	TradePrice       float64   `json:"trade_price"`
	OpenPrice        float64   `json:"open_price"`
	HighPrice        float64   `json:"high_price"`
	LowPrice         float64   `json:"low_price"`
	PrevClosingPrice float64   `json:"prev_closing_price"`
	SignedChangeRate float64   `json:"signed_change_rate"`
	AccTradeVolume   float64   `json:"acc_trade_volume_24h"`
	TS               time.Time `json:"ts"` // UTC receive/exchange timestamp
}

// JSON returns the JSON-encoded ticker (ignoring errors for hot-path usage).
func (t *Ticker) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
