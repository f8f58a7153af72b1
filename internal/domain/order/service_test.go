package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/discount"
)

// --- Mock store ---
//
// mockStore applies transactional mutations only on Commit, so a rolled-back
// transaction leaves the observable state untouched. That mirrors the
// atomicity guarantee the real store provides and lets tests assert that
// failed creations have no partial effects.

type mockStore struct {
	customers map[int64]int // id -> points
	discounts map[int64]*discount.Discount
	services  map[int64]catalog.Service

	orders map[int64]*Order
	lines  map[int64][]LineItem
	nextID int64

	beginErr error
	lastTx   *mockTx
}

func newMockStore() *mockStore {
	return &mockStore{
		customers: make(map[int64]int),
		discounts: make(map[int64]*discount.Discount),
		services:  make(map[int64]catalog.Service),
		orders:    make(map[int64]*Order),
		lines:     make(map[int64][]LineItem),
		nextID:    1,
	}
}

func (s *mockStore) Begin(_ context.Context) (Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.lastTx = &mockTx{store: s}
	return s.lastTx, nil
}

func (s *mockStore) List(_ context.Context, _, _ int) ([]Summary, int64, error) {
	return nil, 0, nil
}

func (s *mockStore) SearchByDate(_ context.Context, _, _ time.Time) ([]Summary, error) {
	return nil, nil
}

func (s *mockStore) Get(_ context.Context, id int64) (*Details, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Details{Summary: Summary{Order: *o}, Lines: s.lines[id]}, nil
}

func (s *mockStore) Status(_ context.Context, id int64) (Status, error) {
	o, ok := s.orders[id]
	if !ok {
		return "", ErrNotFound
	}
	return o.Status, nil
}

func (s *mockStore) SetStatus(_ context.Context, id int64, from, to Status) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, ErrStatusChanged
	}
	o.Status = to
	return o, nil
}

func (s *mockStore) Update(_ context.Context, id int64, p Patch, from *Status) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if from != nil && o.Status != *from {
		return nil, ErrStatusChanged
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.HandlerID != nil {
		o.HandlerID = *p.HandlerID
	}
	if p.ClearDiscount {
		o.DiscountID = nil
	} else if p.DiscountID != nil {
		o.DiscountID = p.DiscountID
	}
	return o, nil
}

func (s *mockStore) SoftDelete(_ context.Context, id int64) error {
	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *mockStore) AddLine(_ context.Context, _, _ int64, _ int) error    { return nil }
func (s *mockStore) UpdateLine(_ context.Context, _, _ int64, _ int) error { return nil }
func (s *mockStore) RemoveLine(_ context.Context, _, _ int64) error        { return nil }

// mockTx buffers all writes until Commit.
type mockTx struct {
	store *mockStore

	pendingDeductions map[int64]int
	pendingHeader     *Order
	pendingLines      []LineItem

	committed  bool
	rolledBack bool

	insertHeaderErr error
	insertLineErr   error
	commitErr       error
	rollbackErr     error
}

func (t *mockTx) CustomerPointsForUpdate(_ context.Context, customerID int64) (int, error) {
	points, ok := t.store.customers[customerID]
	if !ok {
		return 0, customer.ErrNotFound
	}
	return points, nil
}

func (t *mockTx) ActiveDiscount(_ context.Context, discountID int64) (*discount.Discount, error) {
	d, ok := t.store.discounts[discountID]
	if !ok || d.IsDeleted {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (t *mockTx) DeductCustomerPoints(_ context.Context, customerID int64, points int) error {
	if t.pendingDeductions == nil {
		t.pendingDeductions = make(map[int64]int)
	}
	t.pendingDeductions[customerID] += points
	return nil
}

func (t *mockTx) ServiceByID(_ context.Context, serviceID int64) (*catalog.Service, error) {
	svc, ok := t.store.services[serviceID]
	if !ok {
		return nil, &catalog.ServiceNotFoundError{ServiceID: serviceID}
	}
	return &svc, nil
}

func (t *mockTx) InsertHeader(_ context.Context, customerID, handlerID int64, discountID *int64) (*Order, error) {
	if t.insertHeaderErr != nil {
		return nil, t.insertHeaderErr
	}
	// Mirrors the customer_id foreign key on the orders table.
	if _, ok := t.store.customers[customerID]; !ok {
		return nil, customer.ErrNotFound
	}
	t.pendingHeader = &Order{
		ID:         t.store.nextID,
		CustomerID: customerID,
		OrderDate:  time.Now(),
		HandlerID:  handlerID,
		Status:     StatusPending,
		DiscountID: discountID,
	}
	return t.pendingHeader, nil
}

func (t *mockTx) InsertLine(_ context.Context, _ int64, line LineItem) error {
	if t.insertLineErr != nil {
		return t.insertLineErr
	}
	t.pendingLines = append(t.pendingLines, line)
	return nil
}

func (t *mockTx) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	for id, points := range t.pendingDeductions {
		t.store.customers[id] -= points
	}
	if t.pendingHeader != nil {
		t.store.orders[t.pendingHeader.ID] = t.pendingHeader
		t.store.lines[t.pendingHeader.ID] = t.pendingLines
		t.store.nextID++
	}
	return nil
}

func (t *mockTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return t.rollbackErr
}

// --- Helpers ---

func newStoreWithCatalog() *mockStore {
	s := newMockStore()
	s.services[2] = catalog.Service{ID: 2, Name: "Standard wash", PricePerUnit: decimal.RequireFromString("4.00")}
	s.services[3] = catalog.Service{ID: 3, Name: "Repair", PricePerUnit: decimal.RequireFromString("20.00")}
	return s
}

func ptr[T any](v T) *T { return &v }

// --- Tests ---

func TestCreate_EmptyOrder(t *testing.T) {
	svc := NewService(newStoreWithCatalog())

	_, err := svc.Create(context.Background(), CreateRequest{CustomerID: 1, HandlerID: 9})
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	svc := NewService(newStoreWithCatalog())

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 0}},
	})

	var qtyErr *catalog.InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.EqualValues(t, 2, qtyErr.ServiceID)
}

func TestCreate_DuplicateService(t *testing.T) {
	svc := NewService(newStoreWithCatalog())

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		Lines: []LineRequest{
			{ServiceID: 2, Quantity: 1},
			{ServiceID: 2, Quantity: 3},
		},
	})
	require.ErrorIs(t, err, ErrDuplicateService)
}

func TestCreate_NoDiscount(t *testing.T) {
	store := newStoreWithCatalog()
	store.customers[1] = 15
	svc := NewService(store)

	res, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		Lines: []LineRequest{
			{ServiceID: 2, Quantity: 3},
			{ServiceID: 3, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Order.Status)
	assert.Zero(t, res.PointsSpent)
	require.Len(t, res.Lines, 2)
	assert.True(t, res.Lines[0].TotalPrice.Equal(decimal.RequireFromString("12.00")),
		"line total %s", res.Lines[0].TotalPrice)
	assert.True(t, res.TotalPrice.Equal(decimal.RequireFromString("32.00")),
		"order total %s", res.TotalPrice)

	assert.True(t, store.lastTx.committed)
	assert.Equal(t, 15, store.customers[1], "points must be untouched without a discount")
}

func TestCreate_WithDiscount(t *testing.T) {
	store := newStoreWithCatalog()
	store.customers[1] = 15
	store.discounts[5] = &discount.Discount{ID: 5, Type: discount.TypePercent, RequiredPoints: 10}
	svc := NewService(store)

	res, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		DiscountID: ptr[int64](5),
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 3}},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, res.PointsSpent)
	assert.True(t, res.TotalPrice.Equal(decimal.RequireFromString("12.00")),
		"order total %s", res.TotalPrice)
	assert.Equal(t, 5, store.customers[1], "points must be deducted on commit")
	require.NotNil(t, res.Order.DiscountID)
	assert.EqualValues(t, 5, *res.Order.DiscountID)
}

func TestCreate_InsufficientPoints(t *testing.T) {
	store := newStoreWithCatalog()
	store.customers[1] = 5
	store.discounts[5] = &discount.Discount{ID: 5, Type: discount.TypePercent, RequiredPoints: 10}
	svc := NewService(store)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		DiscountID: ptr[int64](5),
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 3}},
	})
	require.ErrorIs(t, err, discount.ErrInsufficientPoints)

	assert.True(t, store.lastTx.rolledBack)
	assert.Equal(t, 5, store.customers[1], "points must be unchanged after rejection")
	assert.Empty(t, store.orders, "no order row may exist after rejection")
}

func TestCreate_DiscountNotFound(t *testing.T) {
	store := newStoreWithCatalog()
	store.customers[1] = 50
	store.discounts[7] = &discount.Discount{ID: 7, RequiredPoints: 10, IsDeleted: true}
	svc := NewService(store)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		DiscountID: ptr[int64](7),
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 1}},
	})
	require.ErrorIs(t, err, discount.ErrNotFound)
	assert.True(t, store.lastTx.rolledBack)
}

func TestCreate_CustomerNotFound(t *testing.T) {
	store := newStoreWithCatalog()
	store.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 10}
	svc := NewService(store)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 404,
		HandlerID:  9,
		DiscountID: ptr[int64](5),
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 1}},
	})
	require.ErrorIs(t, err, customer.ErrNotFound)
	assert.True(t, store.lastTx.rolledBack)
}

func TestCreate_CustomerNotFoundWithoutDiscount(t *testing.T) {
	store := newStoreWithCatalog()
	svc := NewService(store)

	// Without a discount the customer row is first touched by the header
	// insert, so the missing customer surfaces from there.
	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 404,
		HandlerID:  9,
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 1}},
	})
	require.ErrorIs(t, err, customer.ErrNotFound)
	assert.True(t, store.lastTx.rolledBack)
	assert.Empty(t, store.orders)
}

func TestCreate_ServiceNotFoundAbortsWholeOrder(t *testing.T) {
	store := newStoreWithCatalog()
	store.customers[1] = 15
	store.discounts[5] = &discount.Discount{ID: 5, RequiredPoints: 10}
	svc := NewService(store)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		DiscountID: ptr[int64](5),
		Lines: []LineRequest{
			{ServiceID: 2, Quantity: 1},
			{ServiceID: 999, Quantity: 1},
		},
	})

	var nfErr *catalog.ServiceNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.EqualValues(t, 999, nfErr.ServiceID)

	assert.True(t, store.lastTx.rolledBack)
	assert.Equal(t, 15, store.customers[1], "points deduction must roll back with the order")
	assert.Empty(t, store.orders)
}

func TestCreate_CommitError(t *testing.T) {
	store := newStoreWithCatalog()
	store.customers[1] = 15
	svc := NewService(&failingCommitStore{mockStore: store})

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Empty(t, store.orders)
}

func TestCreate_BeginError(t *testing.T) {
	store := newStoreWithCatalog()
	store.beginErr = errors.New("pool exhausted")
	svc := NewService(store)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID: 1,
		HandlerID:  9,
		Lines:      []LineRequest{{ServiceID: 2, Quantity: 1}},
	})
	require.Error(t, err)
}

// failingCommitStore wraps mockStore to make every transaction fail at commit.
type failingCommitStore struct {
	*mockStore
}

func (s *failingCommitStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.mockStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	tx.(*mockTx).commitErr = errors.New("commit failed")
	return tx, nil
}

func TestUpdateStatus_ValidTransition(t *testing.T) {
	store := newStoreWithCatalog()
	store.orders[1] = &Order{ID: 1, Status: StatusPending}
	svc := NewService(store)

	updated, err := svc.UpdateStatus(context.Background(), 1, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	store := newStoreWithCatalog()
	store.orders[1] = &Order{ID: 1, Status: StatusCompleted}
	svc := NewService(store)

	_, err := svc.UpdateStatus(context.Background(), 1, StatusPending)

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, StatusCompleted, transErr.From)
	assert.Equal(t, StatusPending, transErr.To)
}

// racingStore simulates a concurrent writer: the first compare-and-set loses
// because the stored status flips to hijack before the write lands.
type racingStore struct {
	*mockStore
	hijack   Status
	raced    bool
	fromSeen []Status
}

func (s *racingStore) SetStatus(ctx context.Context, id int64, from, to Status) (*Order, error) {
	s.fromSeen = append(s.fromSeen, from)
	if !s.raced {
		s.raced = true
		s.orders[id].Status = s.hijack
		return nil, ErrStatusChanged
	}
	return s.mockStore.SetStatus(ctx, id, from, to)
}

func (s *racingStore) Update(ctx context.Context, id int64, p Patch, from *Status) (*Order, error) {
	if from != nil && !s.raced {
		s.raced = true
		s.orders[id].Status = s.hijack
		return nil, ErrStatusChanged
	}
	return s.mockStore.Update(ctx, id, p, from)
}

func TestUpdateStatus_RetriesAfterConcurrentUpdate(t *testing.T) {
	base := newStoreWithCatalog()
	base.orders[1] = &Order{ID: 1, Status: StatusPending}
	store := &racingStore{mockStore: base, hijack: StatusConfirmed}
	svc := NewService(store)

	// A concurrent confirm lands between the status read and the write; the
	// retry validates against the fresh status and still succeeds.
	updated, err := svc.UpdateStatus(context.Background(), 1, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, []Status{StatusPending, StatusConfirmed}, store.fromSeen)
}

func TestUpdateStatus_ConcurrentCancelForbidsTransition(t *testing.T) {
	base := newStoreWithCatalog()
	base.orders[1] = &Order{ID: 1, Status: StatusPending}
	store := &racingStore{mockStore: base, hijack: StatusCancelled}
	svc := NewService(store)

	// A concurrent cancel wins the race; the stale pending->confirmed write
	// must not land on the now-terminal order.
	_, err := svc.UpdateStatus(context.Background(), 1, StatusConfirmed)

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, StatusCancelled, transErr.From)
	assert.Equal(t, StatusCancelled, base.orders[1].Status)
}

func TestUpdate_StatusRetriesAfterConcurrentUpdate(t *testing.T) {
	base := newStoreWithCatalog()
	base.orders[1] = &Order{ID: 1, Status: StatusPending}
	store := &racingStore{mockStore: base, hijack: StatusConfirmed}
	svc := NewService(store)

	st := StatusCancelled
	handler := int64(11)
	updated, err := svc.Update(context.Background(), 1, Patch{Status: &st, HandlerID: &handler})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.EqualValues(t, 11, updated.HandlerID)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := NewService(newStoreWithCatalog())

	_, err := svc.UpdateStatus(context.Background(), 42, StatusConfirmed)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_EmptyPatch(t *testing.T) {
	svc := NewService(newStoreWithCatalog())

	_, err := svc.Update(context.Background(), 1, Patch{})
	require.ErrorIs(t, err, ErrNoFieldsProvided)
}

func TestUpdate_StatusGoesThroughLifecycle(t *testing.T) {
	store := newStoreWithCatalog()
	store.orders[1] = &Order{ID: 1, Status: StatusCancelled}
	svc := NewService(store)

	st := StatusCompleted
	_, err := svc.Update(context.Background(), 1, Patch{Status: &st})

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestUpdate_ClearDiscount(t *testing.T) {
	store := newStoreWithCatalog()
	store.orders[1] = &Order{ID: 1, Status: StatusPending, DiscountID: ptr[int64](5)}
	svc := NewService(store)

	updated, err := svc.Update(context.Background(), 1, Patch{ClearDiscount: true})
	require.NoError(t, err)
	assert.Nil(t, updated.DiscountID)
}

func TestDelete_Idempotency(t *testing.T) {
	store := newStoreWithCatalog()
	store.orders[1] = &Order{ID: 1, Status: StatusPending}
	svc := NewService(store)

	require.NoError(t, svc.Delete(context.Background(), 1))
	require.ErrorIs(t, svc.Delete(context.Background(), 1), ErrNotFound)
}

func TestAddLine_InvalidQuantity(t *testing.T) {
	svc := NewService(newStoreWithCatalog())

	err := svc.AddLine(context.Background(), 1, 2, 0)

	var qtyErr *catalog.InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
}
