package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/order"
)

const (
	summaryColumnsSQL = `
		o.order_id,
		o.customer_id,
		o.order_date,
		o.handler_id,
		o.order_status,
		o.discount_id,
		o.updated_at,
		d.discount_type,
		d.amount AS discount_amount,
		COALESCE(SUM(os.total_price), 0) AS total_order_price`

	summaryFromSQL = `
		FROM orders o
		LEFT JOIN order_service os ON o.order_id = os.order_id
		LEFT JOIN discounts d ON o.discount_id = d.discount_id`

	summaryGroupBySQL = `
		GROUP BY o.order_id, o.customer_id, o.order_date, o.handler_id,
			o.order_status, o.discount_id, o.updated_at, d.discount_type, d.amount`

	listOrdersSQL = `SELECT` + summaryColumnsSQL + summaryFromSQL + `
		WHERE o.is_deleted = FALSE` + summaryGroupBySQL + `
		ORDER BY o.order_date DESC
		LIMIT $1 OFFSET $2`

	countOrdersSQL = `SELECT COUNT(*) FROM orders WHERE is_deleted = FALSE`

	searchOrdersSQL = `SELECT` + summaryColumnsSQL + summaryFromSQL + `
		WHERE o.is_deleted = FALSE AND o.order_date BETWEEN $1 AND $2` + summaryGroupBySQL + `
		ORDER BY o.order_date DESC`

	getOrderSQL = `SELECT` + summaryColumnsSQL + summaryFromSQL + `
		WHERE o.is_deleted = FALSE AND o.order_id = $1` + summaryGroupBySQL

	getOrderLinesSQL = `SELECT os.service_id, s.service_name, os.number_of_unit, os.total_price
		FROM order_service os
		LEFT JOIN services s ON os.service_id = s.service_id
		WHERE os.order_id = $1
		ORDER BY os.service_id`

	getStatusSQL = `SELECT order_status FROM orders WHERE order_id = $1 AND is_deleted = FALSE`

	setStatusSQL = `UPDATE orders SET order_status = $3, updated_at = NOW()
		WHERE order_id = $1 AND order_status = $2 AND is_deleted = FALSE
		RETURNING order_id, customer_id, order_date, handler_id, order_status, discount_id, updated_at`

	softDeleteSQL = `UPDATE orders SET is_deleted = TRUE, updated_at = NOW()
		WHERE order_id = $1 AND is_deleted = FALSE`

	orderAliveSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1 AND is_deleted = FALSE)`

	addLineSQL = `INSERT INTO order_service (order_id, service_id, number_of_unit, total_price)
		SELECT $1, $2, $3, $3 * s.service_price_per_unit
		FROM services s
		WHERE s.service_id = $2
		AND EXISTS (SELECT 1 FROM orders WHERE orders.order_id = $1 AND is_deleted = FALSE)`

	updateLineSQL = `UPDATE order_service os
		SET number_of_unit = $3, total_price = $3 * s.service_price_per_unit
		FROM services s
		WHERE os.order_id = $1 AND os.service_id = $2 AND s.service_id = $2
		AND EXISTS (SELECT 1 FROM orders WHERE orders.order_id = $1 AND is_deleted = FALSE)`

	removeLineSQL = `DELETE FROM order_service WHERE order_id = $1 AND service_id = $2
		AND EXISTS (SELECT 1 FROM orders WHERE orders.order_id = $1 AND is_deleted = FALSE)`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Begin opens an order-creation transaction scope.
func (r *OrderRepository) Begin(ctx context.Context) (order.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &orderTx{tx: tx}, nil
}

// List returns one page of non-deleted orders ordered by date descending,
// together with the total number of non-deleted orders.
func (r *OrderRepository) List(ctx context.Context, page, limit int) ([]order.Summary, int64, error) {
	offset := (page - 1) * limit

	rows, err := r.pool.Query(ctx, listOrdersSQL, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	summaries, err := pgx.CollectRows(rows, scanSummary)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countOrdersSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	return summaries, total, nil
}

// SearchByDate returns non-deleted orders with order_date in [from, to].
func (r *OrderRepository) SearchByDate(ctx context.Context, from, to time.Time) ([]order.Summary, error) {
	rows, err := r.pool.Query(ctx, searchOrdersSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("searching orders: %w", err)
	}
	summaries, err := pgx.CollectRows(rows, scanSummary)
	if err != nil {
		return nil, fmt.Errorf("searching orders: %w", err)
	}
	return summaries, nil
}

// Get returns the order header with its nested line items, or
// order.ErrNotFound for missing and soft-deleted orders.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Details, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	summary, err := pgx.CollectExactlyOneRow(rows, scanSummary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	lineRows, err := r.pool.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %d: %w", id, err)
	}
	lines, err := pgx.CollectRows(lineRows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %d: %w", id, err)
	}

	return &order.Details{Summary: summary, Lines: lines}, nil
}

// Status returns the current status of a non-deleted order.
func (r *OrderRepository) Status(ctx context.Context, id int64) (order.Status, error) {
	var status string
	err := r.pool.QueryRow(ctx, getStatusSQL, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrNotFound
		}
		return "", fmt.Errorf("getting status of order %d: %w", id, err)
	}
	return order.Status(status), nil
}

// SetStatus writes the status only when the row still carries from, so two
// racing updates cannot both apply against the same stale read. Zero rows
// means either the order is gone (order.ErrNotFound) or a concurrent update
// won (order.ErrStatusChanged); the current status disambiguates.
func (r *OrderRepository) SetStatus(ctx context.Context, id int64, from, to order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, setStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating status of order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.statusMiss(ctx, id)
		}
		return nil, fmt.Errorf("updating status of order %d: %w", id, err)
	}
	return &o, nil
}

// statusMiss reports why a compare-and-set status write matched no row.
func (r *OrderRepository) statusMiss(ctx context.Context, id int64) error {
	var status string
	err := r.pool.QueryRow(ctx, getStatusSQL, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("re-reading status of order %d: %w", id, err)
	}
	return order.ErrStatusChanged
}

// Update applies a partial update built from whichever patch fields are
// present. The caller guarantees the patch is non-empty. A non-nil from adds
// a compare-and-set on the status the caller validated against.
func (r *OrderRepository) Update(ctx context.Context, id int64, p order.Patch, from *order.Status) (*order.Order, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if p.Status != nil {
		args = append(args, string(*p.Status))
		sets = append(sets, fmt.Sprintf("order_status = $%d", len(args)))
	}
	if p.HandlerID != nil {
		args = append(args, *p.HandlerID)
		sets = append(sets, fmt.Sprintf("handler_id = $%d", len(args)))
	}
	if p.ClearDiscount {
		sets = append(sets, "discount_id = NULL")
	} else if p.DiscountID != nil {
		args = append(args, *p.DiscountID)
		sets = append(sets, fmt.Sprintf("discount_id = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, order.ErrNoFieldsProvided
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	where := fmt.Sprintf("order_id = $%d AND is_deleted = FALSE", len(args))
	if from != nil {
		args = append(args, string(*from))
		where += fmt.Sprintf(" AND order_status = $%d", len(args))
	}
	sql := fmt.Sprintf(`UPDATE orders SET %s WHERE %s
		RETURNING order_id, customer_id, order_date, handler_id, order_status, discount_id, updated_at`,
		strings.Join(sets, ", "), where)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("updating order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if from != nil {
				return nil, r.statusMiss(ctx, id)
			}
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %d: %w", id, err)
	}
	return &o, nil
}

// SoftDelete marks the order deleted. A second delete of the same order
// affects no rows and reports order.ErrNotFound.
func (r *OrderRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, softDeleteSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// AddLine inserts a line item priced at the service's current unit rate.
// Constraint violations are mapped to domain errors: a duplicate
// (order, service) pair to order.ErrDuplicateService, a missing order to
// order.ErrNotFound.
func (r *OrderRepository) AddLine(ctx context.Context, orderID, serviceID int64, quantity int) error {
	tag, err := r.pool.Exec(ctx, addLineSQL, orderID, serviceID, quantity)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return order.ErrDuplicateService
			case pgerrcode.ForeignKeyViolation:
				return order.ErrNotFound
			}
		}
		return fmt.Errorf("adding service %d to order %d: %w", serviceID, orderID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the catalog row or the live order is missing.
		alive, err := r.orderAlive(ctx, orderID)
		if err != nil {
			return err
		}
		if !alive {
			return order.ErrNotFound
		}
		return &catalog.ServiceNotFoundError{ServiceID: serviceID}
	}
	return nil
}

// orderAlive reports whether a non-deleted order with the given id exists.
func (r *OrderRepository) orderAlive(ctx context.Context, id int64) (bool, error) {
	var alive bool
	if err := r.pool.QueryRow(ctx, orderAliveSQL, id).Scan(&alive); err != nil {
		return false, fmt.Errorf("checking order %d: %w", id, err)
	}
	return alive, nil
}

// UpdateLine changes a line's quantity and recomputes its total at the
// service's current unit price. Lines of soft-deleted orders are not
// reachable.
func (r *OrderRepository) UpdateLine(ctx context.Context, orderID, serviceID int64, quantity int) error {
	tag, err := r.pool.Exec(ctx, updateLineSQL, orderID, serviceID, quantity)
	if err != nil {
		return fmt.Errorf("updating service %d on order %d: %w", serviceID, orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.lineMiss(ctx, orderID)
	}
	return nil
}

// RemoveLine deletes a line item. Lines of soft-deleted orders are not
// reachable.
func (r *OrderRepository) RemoveLine(ctx context.Context, orderID, serviceID int64) error {
	tag, err := r.pool.Exec(ctx, removeLineSQL, orderID, serviceID)
	if err != nil {
		return fmt.Errorf("removing service %d from order %d: %w", serviceID, orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.lineMiss(ctx, orderID)
	}
	return nil
}

// lineMiss reports why a line mutation matched no row: a missing or
// soft-deleted order, or a missing line on a live one.
func (r *OrderRepository) lineMiss(ctx context.Context, orderID int64) error {
	alive, err := r.orderAlive(ctx, orderID)
	if err != nil {
		return err
	}
	if !alive {
		return order.ErrNotFound
	}
	return order.ErrLineNotFound
}

func scanSummary(row pgx.CollectableRow) (order.Summary, error) {
	var (
		s      order.Summary
		status string
		total  decimal.Decimal
	)
	err := row.Scan(
		&s.ID, &s.CustomerID, &s.OrderDate, &s.HandlerID, &status,
		&s.DiscountID, &s.UpdatedAt, &s.DiscountType, &s.DiscountAmount, &total,
	)
	s.Status = order.Status(status)
	s.TotalPrice = total
	return s, err
}

func scanLine(row pgx.CollectableRow) (order.LineItem, error) {
	var l order.LineItem
	err := row.Scan(&l.ServiceID, &l.ServiceName, &l.Quantity, &l.TotalPrice)
	return l, err
}
