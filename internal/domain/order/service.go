package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/discount"
)

// Service coordinates order creation and lifecycle operations over an
// injected Store.
type Service struct {
	store Store
}

// NewService creates an order Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create places a new order atomically: it validates the request, opens a
// transaction, redeems the discount (when one is requested), inserts the
// header with status pending, prices and inserts every line item, and
// commits. Any failure after the transaction starts rolls back everything,
// including the points deduction; partial orders are never observable.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyOrder
	}

	// The line-item table keys on (order, service), so duplicates cannot be
	// inserted as separate rows. Reject them before touching the store.
	seen := make(map[int64]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, &catalog.InvalidQuantityError{ServiceID: l.ServiceID}
		}
		if _, dup := seen[l.ServiceID]; dup {
			return nil, errors.Wrapf(ErrDuplicateService, "service %d", l.ServiceID)
		}
		seen[l.ServiceID] = struct{}{}
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Best-effort cleanup: a failed rollback is logged, never surfaced.
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			zctx.From(ctx).Error("order creation rollback failed", zap.Error(rbErr))
		}
	}()

	pointsSpent := 0
	if req.DiscountID != nil {
		pointsSpent, err = discount.CheckAndReserve(ctx, tx, req.CustomerID, *req.DiscountID)
		if err != nil {
			return nil, err
		}
	}

	hdr, err := tx.InsertHeader(ctx, req.CustomerID, req.HandlerID, req.DiscountID)
	if err != nil {
		return nil, errors.Wrap(err, "insert order header")
	}

	lines := make([]LineItem, 0, len(req.Lines))
	total := decimal.Zero
	for _, l := range req.Lines {
		svc, lineTotal, err := catalog.ResolveLineTotal(ctx, tx, l.ServiceID, l.Quantity)
		if err != nil {
			return nil, err
		}

		line := LineItem{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			Quantity:    l.Quantity,
			TotalPrice:  lineTotal,
		}
		if err := tx.InsertLine(ctx, hdr.ID, line); err != nil {
			return nil, errors.Wrapf(err, "insert line for service %d", l.ServiceID)
		}

		lines = append(lines, line)
		total = total.Add(lineTotal)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	committed = true

	return &CreateResult{
		Order:       *hdr,
		Lines:       lines,
		TotalPrice:  total.Round(2),
		PointsSpent: pointsSpent,
	}, nil
}

// List returns one page of non-deleted orders, most recent first.
func (s *Service) List(ctx context.Context, page, limit int) (*Page, error) {
	orders, total, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, TotalRecord: total, Page: page, Limit: limit}, nil
}

// SearchByDate returns non-deleted orders whose order date falls within the
// inclusive [from, to] range, most recent first. Callers are expected to
// have expanded the bounds to full days.
func (s *Service) SearchByDate(ctx context.Context, from, to time.Time) ([]Summary, error) {
	return s.store.SearchByDate(ctx, from, to)
}

// Get returns the order header with its nested line items.
func (s *Service) Get(ctx context.Context, id int64) (*Details, error) {
	return s.store.Get(ctx, id)
}

// UpdateStatus is the status-only fast path. The requested transition is
// checked against the lifecycle graph and applied with a compare-and-set on
// the status read; if a concurrent update wins the race the new status is
// re-read and re-validated, so a forbidden transition can never materialize.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (*Order, error) {
	for {
		cur, err := s.store.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := ValidateTransition(cur, to); err != nil {
			return nil, err
		}

		updated, err := s.store.SetStatus(ctx, id, cur, to)
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		return updated, err
	}
}

// Update applies a partial update. An empty patch is rejected; a status
// change goes through the same validate-then-compare-and-set loop as
// UpdateStatus.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Order, error) {
	if p.Empty() {
		return nil, ErrNoFieldsProvided
	}

	for {
		var from *Status
		if p.Status != nil {
			cur, err := s.store.Status(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := ValidateTransition(cur, *p.Status); err != nil {
				return nil, err
			}
			from = &cur
		}

		updated, err := s.store.Update(ctx, id, p, from)
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		return updated, err
	}
}

// Delete soft-deletes the order. Deleting an already-deleted order returns
// ErrNotFound rather than a second success. Line items are not cascaded.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.SoftDelete(ctx, id)
}

// AddLine appends a line item to an existing order at the service's current
// unit price.
func (s *Service) AddLine(ctx context.Context, orderID, serviceID int64, quantity int) error {
	if quantity <= 0 {
		return &catalog.InvalidQuantityError{ServiceID: serviceID}
	}
	return s.store.AddLine(ctx, orderID, serviceID, quantity)
}

// UpdateLine changes a line item's quantity, recomputing its total at the
// service's current unit price.
func (s *Service) UpdateLine(ctx context.Context, orderID, serviceID int64, quantity int) error {
	if quantity <= 0 {
		return &catalog.InvalidQuantityError{ServiceID: serviceID}
	}
	return s.store.UpdateLine(ctx, orderID, serviceID, quantity)
}

// RemoveLine removes a line item from an order.
func (s *Service) RemoveLine(ctx context.Context, orderID, serviceID int64) error {
	return s.store.RemoveLine(ctx, orderID, serviceID)
}
