// Package store defines the key-value persistence abstraction for ledger
// aggregates and auto-trading state. The ledger treats durable storage as
// simple get/set-by-key; concrete backends live in the redis and sqlite
// subpackages.
package store

import (
	"context"
	"errors"
)

// Persisted aggregate keys.
const (
	KeyAccount            = "account"
	KeyPositions          = "positions"
	KeyOrders             = "orders"
	KeyTrades             = "trades"
	KeyAutoTradingConfig  = "autoTradingConfig"
	KeyAutoTradingResults = "autoTradingResults"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable get/set-by-key abstraction. Values are self-describing
// JSON-encoded aggregates carrying their own schema version.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
