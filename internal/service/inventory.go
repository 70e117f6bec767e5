package service

import (
	"context"
	"time"

	"pos-service/internal/catalog"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryService handles administrative catalog edits
type InventoryService struct {
	catalog        *catalog.Catalog
	finalizer      *Finalizer
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewInventoryService creates a new inventory service. Edits are serialized
// with the finalizer's checkouts for the same product.
func NewInventoryService(catalog *catalog.Catalog, finalizer *Finalizer, eventPublisher EventPublisher) *InventoryService {
	return &InventoryService{
		catalog:        catalog,
		finalizer:      finalizer,
		eventPublisher: eventPublisher,
		logger:         util.ComponentLogger("inventory"),
	}
}

// Products returns the full catalog
func (s *InventoryService) Products() []models.Product {
	return s.catalog.List()
}

// Product returns one product
func (s *InventoryService) Product(id string) (models.Product, bool) {
	return s.catalog.Get(id)
}

// StockOf returns live stock, 0 for unknown products
func (s *InventoryService) StockOf(id string) int {
	return s.catalog.StockOf(id)
}

// LowStock returns products at or below their reorder threshold
func (s *InventoryService) LowStock() []models.Product {
	return s.catalog.LowStock()
}

// UpsertProduct creates or replaces a product
func (s *InventoryService) UpsertProduct(ctx context.Context, product models.Product) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.UpsertProduct", attribute.String("product.id", product.ID))
	defer func() { util.EndSpan(span, err) }()

	err = s.finalizer.editProduct(ctx, product.ID, func() (func(), error) {
		return s.catalog.Upsert(product)
	})
	if err != nil {
		s.logger.Warn("Product upsert failed", zap.String("product_id", product.ID), zap.Error(err))
		return err
	}

	s.publish(ctx, product.ID, models.CatalogActionUpserted)
	return nil
}

// RemoveProduct deletes a product. Carts already holding it will fail
// checkout with an inventory conflict.
func (s *InventoryService) RemoveProduct(ctx context.Context, id string) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.RemoveProduct", attribute.String("product.id", id))
	defer func() { util.EndSpan(span, err) }()

	err = s.finalizer.editProduct(ctx, id, func() (func(), error) {
		return s.catalog.Remove(id)
	})
	if err != nil {
		s.logger.Warn("Product removal failed", zap.String("product_id", id), zap.Error(err))
		return err
	}

	s.publish(ctx, id, models.CatalogActionRemoved)
	return nil
}

func (s *InventoryService) publish(ctx context.Context, productID, action string) {
	if s.eventPublisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	event := &models.CatalogUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCatalogUpdated,
			Timestamp: time.Now(),
		},
		ProductID: productID,
		Action:    action,
	}

	if err := s.eventPublisher.PublishCatalogUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish CatalogUpdated event", zap.String("product_id", productID), zap.Error(err))
	}
}
