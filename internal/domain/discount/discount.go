// Package discount holds the points-gated discount rules and the eligibility
// check performed during order creation.
package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent applies a percentage-based discount to the order total.
	TypePercent Type = "percent"
	// TypeFixed applies a fixed monetary discount.
	TypeFixed Type = "fixed"
)

var (
	// ErrNotFound is returned when a discount id does not resolve to a live
	// (non-deleted) discount.
	ErrNotFound = errors.New("discount not found")
	// ErrInsufficientPoints is returned when the customer's point balance is
	// below the discount's required-point threshold.
	ErrInsufficientPoints = errors.New("customer does not have enough points for discount")
)

// Discount defines a redeemable discount and the point cost to unlock it.
// Once referenced by an order a discount is immutable except for its
// soft-delete flag.
type Discount struct {
	ID             int64
	Type           Type
	Amount         decimal.Decimal
	RequiredPoints int
	IsDeleted      bool
}

// Ledger is the lock-holding transaction scope the eligibility check runs
// against. CustomerPointsForUpdate must take an exclusive row lock that
// lasts for the rest of the enclosing transaction, serializing concurrent
// redemptions against the same customer.
type Ledger interface {
	CustomerPointsForUpdate(ctx context.Context, customerID int64) (int, error)
	ActiveDiscount(ctx context.Context, discountID int64) (*Discount, error)
	DeductCustomerPoints(ctx context.Context, customerID int64, points int) error
}

// CheckAndReserve verifies that the customer can redeem the discount and
// deducts the required points in the same lock-held scope. It returns the
// number of points deducted.
//
// Failure modes: customer.ErrNotFound from the ledger when the customer id
// does not resolve, ErrNotFound when the discount is missing or soft-deleted,
// and ErrInsufficientPoints when the balance is below the threshold. On any
// error no points have been deducted; the caller aborts the enclosing
// transaction.
func CheckAndReserve(ctx context.Context, led Ledger, customerID, discountID int64) (int, error) {
	points, err := led.CustomerPointsForUpdate(ctx, customerID)
	if err != nil {
		return 0, errors.Wrap(err, "lock customer points")
	}

	d, err := led.ActiveDiscount(ctx, discountID)
	if err != nil {
		return 0, errors.Wrap(err, "fetch discount")
	}

	if points < d.RequiredPoints {
		return 0, ErrInsufficientPoints
	}

	if err := led.DeductCustomerPoints(ctx, customerID, d.RequiredPoints); err != nil {
		return 0, errors.Wrap(err, "deduct points")
	}

	return d.RequiredPoints, nil
}
