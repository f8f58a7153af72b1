package discount_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/discount"
)

// --- Mock ledger ---

type mockLedger struct {
	points    map[int64]int
	discounts map[int64]*discount.Discount

	deductions map[int64]int
	deductErr  error
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		points:     make(map[int64]int),
		discounts:  make(map[int64]*discount.Discount),
		deductions: make(map[int64]int),
	}
}

func (l *mockLedger) CustomerPointsForUpdate(_ context.Context, customerID int64) (int, error) {
	points, ok := l.points[customerID]
	if !ok {
		return 0, customer.ErrNotFound
	}
	return points, nil
}

func (l *mockLedger) ActiveDiscount(_ context.Context, discountID int64) (*discount.Discount, error) {
	d, ok := l.discounts[discountID]
	if !ok || d.IsDeleted {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (l *mockLedger) DeductCustomerPoints(_ context.Context, customerID int64, points int) error {
	if l.deductErr != nil {
		return l.deductErr
	}
	l.deductions[customerID] += points
	return nil
}

// --- Tests ---

func TestCheckAndReserve(t *testing.T) {
	led := newMockLedger()
	led.points[1] = 15
	led.discounts[5] = &discount.Discount{
		ID:             5,
		Type:           discount.TypePercent,
		Amount:         decimal.RequireFromString("10"),
		RequiredPoints: 10,
	}

	spent, err := discount.CheckAndReserve(context.Background(), led, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, spent)
	assert.Equal(t, 10, led.deductions[1])
}

func TestCheckAndReserve_ExactBalance(t *testing.T) {
	led := newMockLedger()
	led.points[1] = 10
	led.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 10}

	spent, err := discount.CheckAndReserve(context.Background(), led, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, spent)
}

func TestCheckAndReserve_InsufficientPoints(t *testing.T) {
	led := newMockLedger()
	led.points[1] = 5
	led.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 10}

	_, err := discount.CheckAndReserve(context.Background(), led, 1, 5)
	require.ErrorIs(t, err, discount.ErrInsufficientPoints)
	assert.Empty(t, led.deductions, "no points may be deducted on rejection")
}

func TestCheckAndReserve_CustomerNotFound(t *testing.T) {
	led := newMockLedger()
	led.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 10}

	_, err := discount.CheckAndReserve(context.Background(), led, 404, 5)
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestCheckAndReserve_DiscountNotFound(t *testing.T) {
	led := newMockLedger()
	led.points[1] = 50

	_, err := discount.CheckAndReserve(context.Background(), led, 1, 99)
	require.ErrorIs(t, err, discount.ErrNotFound)
	assert.Empty(t, led.deductions)
}

func TestCheckAndReserve_SoftDeletedDiscount(t *testing.T) {
	led := newMockLedger()
	led.points[1] = 50
	led.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 10, IsDeleted: true}

	_, err := discount.CheckAndReserve(context.Background(), led, 1, 5)
	require.ErrorIs(t, err, discount.ErrNotFound)
}

func TestCheckAndReserve_ZeroCostDiscount(t *testing.T) {
	led := newMockLedger()
	led.points[1] = 0
	led.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 0}

	spent, err := discount.CheckAndReserve(context.Background(), led, 1, 5)
	require.NoError(t, err)
	assert.Zero(t, spent)
}
