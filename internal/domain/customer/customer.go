// Package customer holds the slice of the customer domain touched by order
// creation: identity and the loyalty-point balance.
package customer

import "github.com/go-faster/errors"

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer represents an account holder with a loyalty-point balance.
// The balance is never negative; deductions are checked before they are
// applied and the storage layer enforces the same bound.
type Customer struct {
	ID     int64
	Name   string
	Points int
}
