package model

import "time"

// OrderBookUnit is a single price level (best ask/bid pair).
type OrderBookUnit struct {
	AskPrice float64 `json:"ask_price"`
	BidPrice float64 `json:"bid_price"`
	AskSize  float64 `json:"ask_size"`
	BidSize  float64 `json:"bid_size"`
}

// OrderBook represents an order-book snapshot for a single instrument.
type OrderBook struct {
	Code         string          `json:"code"`
	TotalAskSize float64         `json:"total_ask_size"`
	TotalBidSize float64         `json:"total_bid_size"`
	Units        []OrderBookUnit `json:"orderbook_units"`
	TS           time.Time       `json:"ts"`
}
