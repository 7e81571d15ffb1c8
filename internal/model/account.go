package model

import "time"

// SchemaVersion tags every persisted aggregate so future field additions
// can be migrated explicitly instead of relying on JSON shape guesses.
const SchemaVersion = 1

// Account is the single paper-trading account for this process.
// TotalValue is derived (balance + sum of position current values) and is
// only meaningful immediately after a position-value refresh.
type Account struct {
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	Balance    float64   `json:"balance"`
	TotalValue float64   `json:"total_value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Position is an open holding of one instrument. Quantity and AvgPrice are
// recomputed as a weighted average on each buy fill; the profit fields are
// refreshed whenever a current price arrives.
type Position struct {
	Code           string    `json:"code"`
	Quantity       float64   `json:"quantity"`
	AvgPrice       float64   `json:"avg_price"`
	TotalInvested  float64   `json:"total_invested"`
	CurrentValue   float64   `json:"current_value"`
	ProfitLoss     float64   `json:"profit_loss"`
	ProfitLossRate float64   `json:"profit_loss_rate"` // percent
	UpdatedAt      time.Time `json:"updated_at"`
}
