// Package order implements the order domain: the creation transaction
// coordinator, the status lifecycle, and the read-side query contracts.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/discount"
)

// Sentinel errors for order operations.
var (
	// ErrNotFound is returned when an order id does not resolve to a live
	// (non-deleted) order.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyOrder is returned when a creation request carries no line items.
	ErrEmptyOrder = errors.New("at least one service must be provided")
	// ErrDuplicateService is returned when the same service id appears twice,
	// either within one creation request or when adding a line that already
	// exists on the order.
	ErrDuplicateService = errors.New("service already present on order")
	// ErrNoFieldsProvided is returned when a partial update carries no fields.
	ErrNoFieldsProvided = errors.New("no fields to update")
	// ErrLineNotFound is returned when an (order, service) line does not exist.
	ErrLineNotFound = errors.New("service not found on order")
	// ErrStatusChanged is returned by the store when a compare-and-set status
	// write finds the order in a different status than the one it validated
	// against. The caller re-reads and re-validates.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// Order is the order header as stored.
type Order struct {
	ID         int64
	CustomerID int64
	OrderDate  time.Time
	HandlerID  int64
	Status     Status
	DiscountID *int64
	UpdatedAt  *time.Time
}

// LineItem is one priced (service, quantity) entry within an order. The
// total is computed server-side at insertion time and never trusted from
// the caller.
type LineItem struct {
	ServiceID   int64
	ServiceName string
	Quantity    int
	TotalPrice  decimal.Decimal
}

// Summary is the list/search projection: the header joined with discount
// info and the summed line-item total.
type Summary struct {
	Order
	DiscountType   *string
	DiscountAmount *decimal.Decimal
	TotalPrice     decimal.Decimal
}

// Details is the detail projection: a summary plus its line items.
type Details struct {
	Summary
	Lines []LineItem
}

// Page is one page of the order listing.
type Page struct {
	Orders      []Summary
	TotalRecord int64
	Page        int
	Limit       int
}

// LineRequest is one requested line item in a creation request.
type LineRequest struct {
	ServiceID int64
	Quantity  int
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	CustomerID int64
	HandlerID  int64
	DiscountID *int64
	Lines      []LineRequest
}

// CreateResult holds the committed order together with its priced line
// items, the order total, and the points deducted for the discount (zero
// when no discount was applied).
type CreateResult struct {
	Order       Order
	Lines       []LineItem
	TotalPrice  decimal.Decimal
	PointsSpent int
}

// Patch is a partial update of an order. Each field is independently
// optional; at least one must be present. ClearDiscount removes the
// discount reference and takes precedence over DiscountID.
type Patch struct {
	Status        *Status
	HandlerID     *int64
	DiscountID    *int64
	ClearDiscount bool
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.Status == nil && p.HandlerID == nil && p.DiscountID == nil && !p.ClearDiscount
}

// Tx is one order-creation transaction scope. Everything performed through
// it becomes visible atomically on Commit; Rollback reverses all of it,
// including the customer row lock taken by the discount ledger. Rollback
// after a successful Commit is a no-op.
type Tx interface {
	discount.Ledger
	catalog.PriceSource

	InsertHeader(ctx context.Context, customerID, handlerID int64, discountID *int64) (*Order, error)
	InsertLine(ctx context.Context, orderID int64, line LineItem) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the order data store. Begin opens the transactional scope used
// by the creation coordinator; the remaining operations are single-statement
// reads and lifecycle mutations that need no explicit transaction.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	List(ctx context.Context, page, limit int) ([]Summary, int64, error)
	SearchByDate(ctx context.Context, from, to time.Time) ([]Summary, error)
	Get(ctx context.Context, id int64) (*Details, error)

	// Status reads the current status; SetStatus writes it only when the row
	// is still in status from, returning ErrStatusChanged otherwise. Update
	// applies the same compare-and-set when from is non-nil (a status change
	// is part of the patch).
	Status(ctx context.Context, id int64) (Status, error)
	SetStatus(ctx context.Context, id int64, from, to Status) (*Order, error)
	Update(ctx context.Context, id int64, p Patch, from *Status) (*Order, error)
	SoftDelete(ctx context.Context, id int64) error

	AddLine(ctx context.Context, orderID, serviceID int64, quantity int) error
	UpdateLine(ctx context.Context, orderID, serviceID int64, quantity int) error
	RemoveLine(ctx context.Context, orderID, serviceID int64) error
}
