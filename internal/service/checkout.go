package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/ledger"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const eventPublishTimeout = 5 * time.Second

// EventPublisher publishes best-effort domain events
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishCatalogUpdated(ctx context.Context, event *models.CatalogUpdatedEvent) error
}

// Finalizer turns carts into committed sales. It is the only writer of
// stock during checkout.
type Finalizer struct {
	catalog        *catalog.Catalog
	ledger         *ledger.Ledger
	store          store.Store
	eventPublisher EventPublisher
	persistTimeout time.Duration
	logger         *zap.Logger

	locks     productLocks
	persistMu sync.Mutex
	dirty     atomic.Bool

	now   func() time.Time
	newID func() string
}

// NewFinalizer creates a new checkout finalizer
func NewFinalizer(
	catalog *catalog.Catalog,
	ledger *ledger.Ledger,
	store store.Store,
	eventPublisher EventPublisher,
	persistTimeout time.Duration,
) *Finalizer {
	return &Finalizer{
		catalog:        catalog,
		ledger:         ledger,
		store:          store,
		eventPublisher: eventPublisher,
		persistTimeout: persistTimeout,
		logger:         util.ComponentLogger("checkout"),
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
}

// Finalize commits the cart as a sale.
//
// Live stock is re-checked under per-product locks, so two concurrent
// checkouts cannot both take the last unit. Once stock has been decremented
// the call runs to completion regardless of ctx. If the final snapshot write
// fails the sale stays applied in memory and is returned together with a
// *PersistenceError; call RetryPersist rather than finalizing again.
func (f *Finalizer) Finalize(ctx context.Context, c *cart.Cart, cashier models.User, method models.PaymentMethod) (_ models.Sale, err error) {
	ctx, span := util.StartSpan(ctx, "Finalizer.Finalize",
		attribute.String("cashier.id", cashier.ID),
		attribute.String("payment.method", string(method)))
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if !method.Valid() {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_payment_method").Inc()
		return models.Sale{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}

	if !c.BeginCommit() {
		util.CheckoutsFailedTotal.WithLabelValues("in_progress").Inc()
		return models.Sale{}, ErrFinalizeInProgress
	}
	defer c.EndCommit()

	lines := c.Lines()
	if len(lines) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return models.Sale{}, ErrEmptyCart
	}

	if err := ctx.Err(); err != nil {
		return models.Sale{}, err
	}

	sale, err := f.commit(lines, c.Total(), cashier, method)
	if err != nil {
		return models.Sale{}, err
	}

	// Stock is already decremented: ignore caller cancellation from here on.
	ctx = context.WithoutCancel(ctx)

	c.Clear()

	util.SalesCompletedTotal.WithLabelValues(string(method)).Inc()
	util.SalesRevenueTotal.Add(sale.TotalAmount.InexactFloat64())

	f.logger.Info("Sale committed",
		zap.String("sale_id", sale.ID),
		zap.String("cashier_id", cashier.ID),
		zap.Int("lines", len(sale.Items)),
		zap.String("total", sale.TotalAmount.String()))

	span.SetAttributes(attribute.String("sale.id", sale.ID))

	persistErr := f.persist(ctx)
	if persistErr != nil {
		f.logger.Error("Sale applied but not persisted",
			zap.String("sale_id", sale.ID),
			zap.Error(persistErr))
	}

	f.publishSaleCompleted(ctx, sale)

	if persistErr != nil {
		return sale.Clone(), &PersistenceError{SaleID: sale.ID, Err: persistErr}
	}
	return sale.Clone(), nil
}

// commit runs the locked section: live stock check, decrement and ledger
// append.
func (f *Finalizer) commit(lines []models.CartLine, cartTotal decimal.Decimal, cashier models.User, method models.PaymentMethod) (models.Sale, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	unlock := f.locks.lock(ids...)
	defer unlock()

	var conflicts []string
	for _, line := range lines {
		if line.Quantity > f.catalog.StockOf(line.ProductID) {
			conflicts = append(conflicts, line.ProductID)
		}
	}
	if len(conflicts) > 0 {
		util.CheckoutsFailedTotal.WithLabelValues("inventory_conflict").Inc()
		return models.Sale{}, &InventoryConflictError{ProductIDs: conflicts}
	}

	total, err := lineSum(lines, cartTotal)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("total_mismatch").Inc()
		f.logger.Error("Cart failed consistency check", zap.Error(err))
		return models.Sale{}, err
	}

	sale := models.Sale{
		ID:            f.newID(),
		Items:         lines,
		TotalAmount:   total,
		Timestamp:     f.now().UTC(),
		CashierID:     cashier.ID,
		CashierName:   cashier.Username,
		PaymentMethod: method,
	}

	applied := make(map[string]int, len(lines))
	for _, line := range lines {
		n, err := f.catalog.ApplyDecrement(line.ProductID, line.Quantity)
		applied[line.ProductID] += n
		if err != nil {
			f.restock(applied)
			util.CheckoutsFailedTotal.WithLabelValues("inventory_conflict").Inc()
			return models.Sale{}, &InventoryConflictError{ProductIDs: []string{line.ProductID}}
		}
	}

	if err := f.ledger.Append(sale); err != nil {
		f.restock(applied)
		return models.Sale{}, fmt.Errorf("failed to append sale: %w", err)
	}

	return sale, nil
}

func (f *Finalizer) restock(applied map[string]int) {
	for id, n := range applied {
		if n == 0 {
			continue
		}
		if err := f.catalog.Restock(id, n); err != nil {
			f.logger.Error("Failed to restore stock", zap.String("product_id", id), zap.Int("quantity", n), zap.Error(err))
		}
	}
}

// lineSum recomputes the sale total from quantities and unit prices and
// checks it against every stored line total and the cart's own total.
func lineSum(lines []models.CartLine, cartTotal decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range lines {
		expected := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if !expected.Equal(line.LineTotal) {
			return decimal.Zero, fmt.Errorf("%w: line %s total %s, expected %s", ErrTotalMismatch, line.ProductID, line.LineTotal, expected)
		}
		total = total.Add(expected)
	}
	if !total.Equal(cartTotal) {
		return decimal.Zero, fmt.Errorf("%w: cart total %s, lines sum to %s", ErrTotalMismatch, cartTotal, total)
	}
	return total, nil
}

// RetryPersist writes the current catalog and ledger if an earlier write
// failed. It never re-applies a sale.
func (f *Finalizer) RetryPersist(ctx context.Context) error {
	if !f.dirty.Load() {
		return nil
	}

	f.persistMu.Lock()
	defer f.persistMu.Unlock()

	if !f.dirty.Load() {
		return nil
	}
	if err := f.persistLocked(ctx, "retry"); err != nil {
		return &PersistenceError{Err: err}
	}

	f.logger.Info("Pending state persisted")
	return nil
}

// PersistPending reports whether in-memory state is ahead of the store
func (f *Finalizer) PersistPending() bool {
	return f.dirty.Load()
}

// persist writes products and sales together, marking the state dirty on
// failure.
func (f *Finalizer) persist(ctx context.Context) error {
	f.persistMu.Lock()
	defer f.persistMu.Unlock()

	err := f.persistLocked(ctx, "checkout")
	if err != nil {
		f.dirty.Store(true)
		util.PersistPending.Set(1)
	}
	return err
}

// persistLocked saves one snapshot of both collections. A successful write
// covers every sale appended so far, so it clears the dirty flag. The caller
// holds persistMu.
func (f *Finalizer) persistLocked(ctx context.Context, source string) error {
	ctx, cancel := context.WithTimeout(ctx, f.persistTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		util.PersistLatency.Observe(time.Since(start).Seconds())
	}()

	snapshots, err := store.Encode(map[string]any{
		models.CollectionProducts: f.catalog.List(),
		models.CollectionSales:    f.ledger.List(),
	})
	if err != nil {
		return err
	}

	if err := f.store.SaveAll(ctx, snapshots); err != nil {
		util.PersistFailuresTotal.WithLabelValues(source).Inc()
		return err
	}

	f.dirty.Store(false)
	util.PersistPending.Set(0)
	return nil
}

func (f *Finalizer) publishSaleCompleted(ctx context.Context, sale models.Sale) {
	if f.eventPublisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
	defer cancel()

	items := make([]models.SaleItemData, 0, len(sale.Items))
	for _, line := range sale.Items {
		items = append(items, models.SaleItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: time.Now(),
		},
		SaleID:        sale.ID,
		CashierID:     sale.CashierID,
		TotalAmount:   sale.TotalAmount,
		PaymentMethod: sale.PaymentMethod,
		Items:         items,
	}

	if err := f.eventPublisher.PublishSaleCompleted(ctx, event); err != nil {
		f.logger.Error("Failed to publish SaleCompleted event", zap.String("sale_id", sale.ID), zap.Error(err))
	}
}

// editProduct applies a catalog edit while holding the checkout lock for
// that product and the persistence lock, then saves products and sales
// together. The edit is undone if the save fails.
func (f *Finalizer) editProduct(ctx context.Context, id string, edit func() (undo func(), err error)) error {
	unlock := f.locks.lock(id)
	defer unlock()

	f.persistMu.Lock()
	defer f.persistMu.Unlock()

	undo, err := edit()
	if err != nil {
		return err
	}

	if err := f.persistLocked(ctx, "catalog"); err != nil {
		undo()
		return err
	}
	return nil
}

// productLocks hands out one mutex per product id
type productLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the locks for ids in sorted order and returns the release
// function.
func (l *productLocks) lock(ids ...string) func() {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		m := l.get(id)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (l *productLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// IsRetryable reports whether err leaves the cart intact for the cashier to
// adjust and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrInventoryConflict) || errors.Is(err, ErrFinalizeInProgress)
}
