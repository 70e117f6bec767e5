package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/ledger"
	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cashier = models.User{ID: "cashier-1", Username: "cashier1", Role: models.RoleCashier}

type recordingPublisher struct {
	mu       sync.Mutex
	sales    []*models.SaleCompletedEvent
	catalogs []*models.CatalogUpdatedEvent
	err      error
}

func (p *recordingPublisher) PublishSaleCompleted(_ context.Context, e *models.SaleCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, e)
	return p.err
}

func (p *recordingPublisher) PublishCatalogUpdated(_ context.Context, e *models.CatalogUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalogs = append(p.catalogs, e)
	return p.err
}

type fixture struct {
	store     *store.MemoryStore
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	events    *recordingPublisher
	finalizer *Finalizer
}

func newFixture(t *testing.T, products ...models.Product) *fixture {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemoryStore()
	if len(products) > 0 {
		require.NoError(t, store.SaveFrom(ctx, s, models.CollectionProducts, products))
	}

	cat := catalog.New(s, time.Second)
	require.NoError(t, cat.Load(ctx))
	led := ledger.New(s, time.Second)
	require.NoError(t, led.Load(ctx))

	events := &recordingPublisher{}
	return &fixture{
		store:     s,
		catalog:   cat,
		ledger:    led,
		events:    events,
		finalizer: NewFinalizer(cat, led, s, events, time.Second),
	}
}

func product(id string, price string, stock int) models.Product {
	return models.Product{ID: id, Name: "Product " + id, Category: "Test", Price: decimal.RequireFromString(price), Stock: stock}
}

func cartWith(t *testing.T, p models.Product, quantity int) *cart.Cart {
	t.Helper()
	c := cart.New()
	for range quantity {
		require.True(t, c.AddItem(p))
	}
	return c
}

func TestFinalize_Success(t *testing.T) {
	p := product("a", "2.50", 5)
	f := newFixture(t, p)
	c := cartWith(t, p, 3)

	sale, err := f.finalizer.Finalize(context.Background(), c, cashier, models.PaymentCash)
	require.NoError(t, err)

	assert.NotEmpty(t, sale.ID)
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, "cashier-1", sale.CashierID)
	assert.Equal(t, "cashier1", sale.CashierName)
	assert.Equal(t, models.PaymentCash, sale.PaymentMethod)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, 3, sale.Items[0].Quantity)

	assert.Equal(t, 2, f.catalog.StockOf("a"))
	assert.Equal(t, 1, f.ledger.Len())
	assert.Zero(t, c.Len())
	assert.False(t, c.Committing())
	assert.False(t, f.finalizer.PersistPending())

	var persisted []models.Sale
	found, err := store.LoadInto(context.Background(), f.store, models.CollectionSales, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, persisted, 1)
	assert.Equal(t, sale.ID, persisted[0].ID)

	var products []models.Product
	_, err = store.LoadInto(context.Background(), f.store, models.CollectionProducts, &products)
	require.NoError(t, err)
	assert.Equal(t, 2, products[0].Stock)

	require.Len(t, f.events.sales, 1)
	assert.Equal(t, sale.ID, f.events.sales[0].SaleID)
}

func TestFinalize_EmptyCart(t *testing.T) {
	f := newFixture(t, product("a", "1.00", 5))

	_, err := f.finalizer.Finalize(context.Background(), cart.New(), cashier, models.PaymentCard)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.True(t, IsRetryable(err))

	assert.Equal(t, 5, f.catalog.StockOf("a"))
	assert.Zero(t, f.ledger.Len())
	assert.Empty(t, f.events.sales)
}

func TestFinalize_InvalidPaymentMethod(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)
	c := cartWith(t, p, 1)

	_, err := f.finalizer.Finalize(context.Background(), c, cashier, models.PaymentMethod("CHEQUE"))
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 5, f.catalog.StockOf("a"))
}

func TestFinalize_SequentialConflictOnLastUnit(t *testing.T) {
	p := product("a", "1.00", 1)
	f := newFixture(t, p)
	first := cartWith(t, p, 1)
	second := cartWith(t, p, 1)

	_, err := f.finalizer.Finalize(context.Background(), first, cashier, models.PaymentCash)
	require.NoError(t, err)

	_, err = f.finalizer.Finalize(context.Background(), second, cashier, models.PaymentCash)
	require.ErrorIs(t, err, ErrInventoryConflict)

	var conflict *InventoryConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"a"}, conflict.ProductIDs)

	assert.Equal(t, 0, f.catalog.StockOf("a"))
	assert.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, 1, second.Quantity("a"))
}

func TestFinalize_ConflictListsEveryShortProduct(t *testing.T) {
	a, b, c := product("a", "1.00", 2), product("b", "1.00", 2), product("c", "1.00", 2)
	f := newFixture(t, a, b, c)

	stale := cart.New()
	for _, p := range []models.Product{a, a, b, c, c} {
		require.True(t, stale.AddItem(p))
	}

	for _, p := range []models.Product{product("a", "1.00", 1), product("c", "1.00", 0)} {
		_, err := f.catalog.Upsert(p)
		require.NoError(t, err)
	}

	_, err := f.finalizer.Finalize(context.Background(), stale, cashier, models.PaymentCash)
	var conflict *InventoryConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"a", "c"}, conflict.ProductIDs)

	assert.Equal(t, 2, f.catalog.StockOf("b"))
	assert.Zero(t, f.ledger.Len())
}

func TestFinalize_RemovedProductConflicts(t *testing.T) {
	p := product("a", "1.00", 3)
	f := newFixture(t, p, product("b", "1.00", 3))
	c := cartWith(t, p, 1)

	_, err := f.catalog.Remove("a")
	require.NoError(t, err)

	_, err = f.finalizer.Finalize(context.Background(), c, cashier, models.PaymentCash)
	assert.ErrorIs(t, err, ErrInventoryConflict)
	assert.Zero(t, f.ledger.Len())
}

func TestFinalize_ConcurrentLastUnit(t *testing.T) {
	p := product("a", "1.00", 1)
	f := newFixture(t, p)

	const workers = 8
	carts := make([]*cart.Cart, workers)
	for i := range carts {
		carts[i] = cartWith(t, p, 1)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.finalizer.Finalize(context.Background(), carts[i], cashier, models.PaymentCash)
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInventoryConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 0, f.catalog.StockOf("a"))
	assert.Equal(t, 1, f.ledger.Len())
}

func TestFinalize_InProgress(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)
	c := cartWith(t, p, 1)

	require.True(t, c.BeginCommit())
	_, err := f.finalizer.Finalize(context.Background(), c, cashier, models.PaymentCash)
	assert.ErrorIs(t, err, ErrFinalizeInProgress)
	c.EndCommit()

	assert.Equal(t, 5, f.catalog.StockOf("a"))
	assert.Equal(t, 1, c.Len())
}

func TestFinalize_CancelledBeforeCommit(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)
	c := cartWith(t, p, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.finalizer.Finalize(ctx, c, cashier, models.PaymentCash)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, f.catalog.StockOf("a"))
	assert.Equal(t, 1, c.Len())
}

func TestFinalize_PersistenceFailureThenRetry(t *testing.T) {
	p := product("a", "4.00", 5)
	f := newFixture(t, p)
	c := cartWith(t, p, 2)

	f.store.SetFailSaves(true)
	sale, err := f.finalizer.Finalize(context.Background(), c, cashier, models.PaymentMobile)
	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	var persistErr *PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, sale.ID, persistErr.SaleID)
	assert.False(t, IsRetryable(err))

	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, 3, f.catalog.StockOf("a"))
	assert.True(t, f.ledger.Contains(sale.ID))
	assert.Zero(t, c.Len())
	assert.True(t, f.finalizer.PersistPending())

	var persisted []models.Sale
	found, err := store.LoadInto(context.Background(), f.store, models.CollectionSales, &persisted)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, f.finalizer.RetryPersist(context.Background()), ErrPersistence)
	assert.True(t, f.finalizer.PersistPending())

	f.store.SetFailSaves(false)
	require.NoError(t, f.finalizer.RetryPersist(context.Background()))
	assert.False(t, f.finalizer.PersistPending())

	found, err = store.LoadInto(context.Background(), f.store, models.CollectionSales, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, persisted, 1)
	assert.Equal(t, sale.ID, persisted[0].ID)
	assert.Equal(t, 1, f.ledger.Len())

	var products []models.Product
	_, err = store.LoadInto(context.Background(), f.store, models.CollectionProducts, &products)
	require.NoError(t, err)
	assert.Equal(t, 3, products[0].Stock)
}

func TestFinalize_SuccessfulPersistClearsPending(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)

	f.store.SetFailSaves(true)
	first, err := f.finalizer.Finalize(context.Background(), cartWith(t, p, 1), cashier, models.PaymentCash)
	require.ErrorIs(t, err, ErrPersistence)
	require.True(t, f.finalizer.PersistPending())

	f.store.SetFailSaves(false)
	second, err := f.finalizer.Finalize(context.Background(), cartWith(t, p, 1), cashier, models.PaymentCash)
	require.NoError(t, err)
	assert.False(t, f.finalizer.PersistPending())

	var persisted []models.Sale
	_, err = store.LoadInto(context.Background(), f.store, models.CollectionSales, &persisted)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, first.ID, persisted[0].ID)
	assert.Equal(t, second.ID, persisted[1].ID)
}

// gatedStore holds its first write until released and fails every later one
type gatedStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedStore) SaveAll(ctx context.Context, snapshots map[string][]byte) error {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
		return g.MemoryStore.SaveAll(ctx, snapshots)
	}
	return store.ErrUnavailable
}

func TestRetryPersist_KeepsFlagSetByConcurrentFailure(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)
	gated := &gatedStore{MemoryStore: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	fin := NewFinalizer(f.catalog, f.ledger, gated, f.events, time.Second)
	fin.dirty.Store(true)

	retried := make(chan error, 1)
	go func() { retried <- fin.RetryPersist(context.Background()) }()
	<-gated.entered

	c := cartWith(t, p, 1)
	finalized := make(chan error, 1)
	go func() {
		_, err := fin.Finalize(context.Background(), c, cashier, models.PaymentCash)
		finalized <- err
	}()
	require.Eventually(t, func() bool { return f.ledger.Len() == 1 }, time.Second, time.Millisecond)

	close(gated.release)
	require.NoError(t, <-retried)
	assert.ErrorIs(t, <-finalized, ErrPersistence)

	assert.True(t, fin.PersistPending())
}

func TestRetryPersist_NoopWhenClean(t *testing.T) {
	f := newFixture(t, product("a", "1.00", 1))
	f.store.SetFailSaves(true)

	assert.NoError(t, f.finalizer.RetryPersist(context.Background()))
}

func TestFinalize_EventFailureIsNotReturned(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)
	f.events.err = errors.New("broker down")

	_, err := f.finalizer.Finalize(context.Background(), cartWith(t, p, 1), cashier, models.PaymentCash)
	assert.NoError(t, err)
	assert.Len(t, f.events.sales, 1)
}

func TestFinalize_SaleSnapshotIsIndependent(t *testing.T) {
	p := product("a", "1.00", 5)
	f := newFixture(t, p)

	sale, err := f.finalizer.Finalize(context.Background(), cartWith(t, p, 2), cashier, models.PaymentCash)
	require.NoError(t, err)

	sale.Items[0].Quantity = 99
	assert.Equal(t, 2, f.ledger.List()[0].Items[0].Quantity)
}

func TestLineSum(t *testing.T) {
	lines := []models.CartLine{
		{ProductID: "a", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10"), LineTotal: decimal.RequireFromString("0.30")},
		{ProductID: "b", Quantity: 2, UnitPrice: decimal.RequireFromString("1.25"), LineTotal: decimal.RequireFromString("2.50")},
	}

	total, err := lineSum(lines, decimal.RequireFromString("2.80"))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("2.80")))

	_, err = lineSum(lines, decimal.RequireFromString("2.79"))
	assert.ErrorIs(t, err, ErrTotalMismatch)

	lines[1].LineTotal = decimal.RequireFromString("2.49")
	_, err = lineSum(lines, decimal.RequireFromString("2.79"))
	assert.ErrorIs(t, err, ErrTotalMismatch)
}

func TestProductLocks_DuplicateIDs(t *testing.T) {
	var locks productLocks
	unlock := locks.lock("b", "a", "b")
	unlock()

	done := make(chan struct{})
	go func() {
		locks.lock("a", "b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locks were not released")
	}
}
