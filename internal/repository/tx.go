package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/discount"
	"github.com/xenking/orderdesk/internal/domain/order"
)

const (
	lockCustomerPointsSQL = `SELECT points FROM customers WHERE customer_id = $1 FOR UPDATE`

	getActiveDiscountSQL = `SELECT discount_id, discount_type, amount, required_points
		FROM discounts WHERE discount_id = $1 AND is_deleted = FALSE`

	deductPointsSQL = `UPDATE customers SET points = points - $2
		WHERE customer_id = $1 AND points >= $2`

	getServiceSQL = `SELECT service_id, service_name, service_price_per_unit
		FROM services WHERE service_id = $1`

	insertOrderSQL = `INSERT INTO orders (customer_id, handler_id, discount_id)
		VALUES ($1, $2, $3)
		RETURNING order_id, customer_id, order_date, handler_id, order_status, discount_id, updated_at`

	insertLineSQL = `INSERT INTO order_service (order_id, service_id, number_of_unit, total_price)
		VALUES ($1, $2, $3, $4)`
)

var _ order.Tx = (*orderTx)(nil)

// orderTx is one order-creation transaction scope over a pgx transaction.
// The customer row lock taken by CustomerPointsForUpdate is held until
// Commit or Rollback.
type orderTx struct {
	tx pgx.Tx
}

// CustomerPointsForUpdate reads the customer's point balance under an
// exclusive row lock, serializing concurrent redemptions for that customer.
func (t *orderTx) CustomerPointsForUpdate(ctx context.Context, customerID int64) (int, error) {
	var points int
	err := t.tx.QueryRow(ctx, lockCustomerPointsSQL, customerID).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, customer.ErrNotFound
		}
		return 0, fmt.Errorf("locking customer %d: %w", customerID, err)
	}
	return points, nil
}

// ActiveDiscount returns the discount when it exists and is not soft-deleted.
func (t *orderTx) ActiveDiscount(ctx context.Context, discountID int64) (*discount.Discount, error) {
	var d discount.Discount
	err := t.tx.QueryRow(ctx, getActiveDiscountSQL, discountID).
		Scan(&d.ID, &d.Type, &d.Amount, &d.RequiredPoints)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %d: %w", discountID, err)
	}
	return &d, nil
}

// DeductCustomerPoints subtracts points from the locked customer row. The
// WHERE clause re-checks the balance so the non-negative invariant holds
// even if a caller skips the eligibility check.
func (t *orderTx) DeductCustomerPoints(ctx context.Context, customerID int64, points int) error {
	tag, err := t.tx.Exec(ctx, deductPointsSQL, customerID, points)
	if err != nil {
		return fmt.Errorf("deducting %d points from customer %d: %w", points, customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrInsufficientPoints
	}
	return nil
}

// ServiceByID returns the catalog service with its current unit price.
func (t *orderTx) ServiceByID(ctx context.Context, serviceID int64) (*catalog.Service, error) {
	var svc catalog.Service
	err := t.tx.QueryRow(ctx, getServiceSQL, serviceID).
		Scan(&svc.ID, &svc.Name, &svc.PricePerUnit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.ServiceNotFoundError{ServiceID: serviceID}
		}
		return nil, fmt.Errorf("getting service %d: %w", serviceID, err)
	}
	return &svc, nil
}

// InsertHeader inserts the order header with the default pending status.
// Foreign key violations are mapped to the not-found error of the referenced
// entity: without a discount the customer row is never read beforehand, so
// the FK on customer_id is the first place an unknown customer surfaces.
func (t *orderTx) InsertHeader(ctx context.Context, customerID, handlerID int64, discountID *int64) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, insertOrderSQL, customerID, handlerID, discountID)
	if err != nil {
		return nil, mapHeaderError(err)
	}

	hdr, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return nil, mapHeaderError(err)
	}
	return &hdr, nil
}

func mapHeaderError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "customer"):
			return customer.ErrNotFound
		case strings.Contains(pgErr.ConstraintName, "discount"):
			return discount.ErrNotFound
		}
	}
	return fmt.Errorf("inserting order header: %w", err)
}

// InsertLine inserts one priced line item.
func (t *orderTx) InsertLine(ctx context.Context, orderID int64, line order.LineItem) error {
	_, err := t.tx.Exec(ctx, insertLineSQL, orderID, line.ServiceID, line.Quantity, line.TotalPrice)
	if err != nil {
		return fmt.Errorf("inserting line (order %d, service %d): %w", orderID, line.ServiceID, err)
	}
	return nil
}

func (t *orderTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *orderTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.OrderDate, &o.HandlerID, &status, &o.DiscountID, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}
