package model

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus is the lifecycle state of an order.
// Orders are created pending and move to completed synchronously on the
// simulated fill; cancelled exists for administrative corrections only.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order represents a paper order against the ledger. No partial fills.
type Order struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	TotalAmount float64     `json:"total_amount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
