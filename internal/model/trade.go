package model

import "time"

// Trade is the immutable record of a completed fill. Append-only; every
// trade corresponds to exactly one completed order.
type Trade struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Code        string    `json:"code"`
	Side        OrderSide `json:"side"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	TotalAmount float64   `json:"total_amount"`
	Fee         float64   `json:"fee"`
	Timestamp   time.Time `json:"timestamp"`
}
