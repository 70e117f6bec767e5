package worker

import (
	"context"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

type persister interface {
	RetryPersist(ctx context.Context) error
	PersistPending() bool
}

// PersistenceWorker retries writes that failed after a sale was applied
type PersistenceWorker struct {
	finalizer persister
	interval  time.Duration
	logger    *zap.Logger
}

// NewPersistenceWorker creates a new persistence retry worker
func NewPersistenceWorker(finalizer persister, interval time.Duration) *PersistenceWorker {
	return &PersistenceWorker{
		finalizer: finalizer,
		interval:  interval,
		logger:    util.ComponentLogger("persistence-worker"),
	}
}

// Start retries on every tick until ctx is cancelled
func (w *PersistenceWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting persistence worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping persistence worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PersistenceWorker) tick(ctx context.Context) {
	if !w.finalizer.PersistPending() {
		return
	}
	if err := w.finalizer.RetryPersist(ctx); err != nil {
		w.logger.Warn("Persistence retry failed", zap.Error(err))
	}
}

type stockSource interface {
	Get(id string) (models.Product, bool)
	LowStock() []models.Product
}

// StockAlertWorker watches committed sales and flags products that dropped
// to their reorder threshold
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	catalog      stockSource
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(consumer *broker.Consumer, catalog stockSource) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer: consumer,
		catalog:  catalog,
		logger:   util.ComponentLogger("stock-alert-worker"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCompleted(w.handleSaleCompleted)
	eventHandler.OnCatalogUpdated(w.handleCatalogUpdated)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

func (w *StockAlertWorker) handleSaleCompleted(_ context.Context, event *models.SaleCompletedEvent) error {
	for _, item := range event.Items {
		p, ok := w.catalog.Get(item.ProductID)
		if !ok || !p.IsLowStock() {
			continue
		}
		w.logger.Warn("Product at reorder threshold",
			zap.String("sale_id", event.SaleID),
			zap.String("product_id", p.ID),
			zap.String("product_name", p.Name),
			zap.Int("stock", p.Stock),
			zap.Int("min_stock", p.MinStock))
	}

	w.refreshGauge()
	return nil
}

func (w *StockAlertWorker) handleCatalogUpdated(_ context.Context, _ *models.CatalogUpdatedEvent) error {
	w.refreshGauge()
	return nil
}

func (w *StockAlertWorker) refreshGauge() int {
	n := len(w.catalog.LowStock())
	util.LowStockProducts.Set(float64(n))
	return n
}
