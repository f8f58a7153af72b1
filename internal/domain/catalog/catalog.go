// Package catalog holds the read-only service catalog types and the pricing
// rules applied when a service is added to an order.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Service represents a catalog item that can be ordered.
type Service struct {
	ID           int64
	Name         string
	PricePerUnit decimal.Decimal
}

// ServiceNotFoundError indicates a requested service does not exist in the
// catalog.
type ServiceNotFoundError struct {
	ServiceID int64
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service %d not found", e.ServiceID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ServiceID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for service %d", e.ServiceID)
}

// PriceSource resolves the current unit price of a catalog service. Within
// an order-creation transaction the source is the transaction handle itself,
// so the price read is consistent with the rest of the transaction.
type PriceSource interface {
	ServiceByID(ctx context.Context, serviceID int64) (*Service, error)
}

// LineTotal computes the total price for quantity units at the service's
// current unit price. The price is captured at call time: later catalog
// price changes do not alter the returned total.
func (s *Service) LineTotal(quantity int) decimal.Decimal {
	return s.PricePerUnit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// ResolveLineTotal fetches the service from src and returns it together with
// the computed total for quantity units. It returns *InvalidQuantityError for
// a non-positive quantity and propagates *ServiceNotFoundError from src.
func ResolveLineTotal(ctx context.Context, src PriceSource, serviceID int64, quantity int) (*Service, decimal.Decimal, error) {
	if quantity <= 0 {
		return nil, decimal.Zero, &InvalidQuantityError{ServiceID: serviceID}
	}

	svc, err := src.ServiceByID(ctx, serviceID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	return svc, svc.LineTotal(quantity), nil
}
