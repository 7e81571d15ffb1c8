package model

// Instrument represents a tradeable instrument (market pair).
type Instrument struct {
	Code        string `json:"code"`         // e.g. "KRW-BTC"
	DisplayName string `json:"display_name"` // english market name
	LocalName   string `json:"local_name"`   // localized market name
}
