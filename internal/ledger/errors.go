package ledger

import "errors"

// Validation failures are rejected synchronously before any state mutation;
// a rejected operation is an atomic no-op.
var (
	ErrInsufficientBalance  = errors.New("ledger: insufficient balance")
	ErrInsufficientPosition = errors.New("ledger: insufficient position quantity")
	ErrInvalidQuantity      = errors.New("ledger: quantity must be positive")
	ErrInvalidPrice         = errors.New("ledger: price must be positive")
	ErrNegativeAmount       = errors.New("ledger: amount must not be negative")
)
