// Package catalog holds the authoritative product list: prices and the
// stock that checkout decrements.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInventoryConflict = errors.New("inventory conflict")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidProduct    = errors.New("invalid product")
)

// DefaultProducts seeds an empty store on first run
func DefaultProducts() []models.Product {
	return []models.Product{
		{ID: "1", Name: "Organic Coffee Beans (1kg)", Category: "Beverages", Price: decimal.RequireFromString("24.50"), Stock: 45, MinStock: 10},
		{ID: "2", Name: "Whole Grain Bread", Category: "Bakery", Price: decimal.RequireFromString("4.25"), Stock: 12, MinStock: 15},
		{ID: "3", Name: "Fresh Milk 1L", Category: "Dairy", Price: decimal.RequireFromString("1.80"), Stock: 60, MinStock: 20},
		{ID: "4", Name: "Dark Chocolate Bar", Category: "Snacks", Price: decimal.RequireFromString("3.50"), Stock: 8, MinStock: 10},
		{ID: "5", Name: "Sparkling Water 500ml", Category: "Beverages", Price: decimal.RequireFromString("1.20"), Stock: 120, MinStock: 50},
	}
}

// Catalog is the in-memory product list backed by a snapshot store
type Catalog struct {
	store   store.Store
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.RWMutex
	products []models.Product
}

// New creates an empty catalog. Call Load before use.
func New(s store.Store, timeout time.Duration) *Catalog {
	return &Catalog{
		store:   s,
		timeout: timeout,
		logger:  util.ComponentLogger("catalog"),
	}
}

// Load reads the products collection, seeding and persisting the
// default catalog when none exists.
func (c *Catalog) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var products []models.Product
	found, err := store.LoadInto(ctx, c.store, models.CollectionProducts, &products)
	if err != nil {
		return err
	}

	if !found {
		products = DefaultProducts()
		if err := store.SaveFrom(ctx, c.store, models.CollectionProducts, products); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		c.logger.Info("Catalog seeded with defaults", zap.Int("count", len(products)))
	}

	c.mu.Lock()
	c.products = products
	c.mu.Unlock()

	util.LowStockProducts.Set(float64(len(c.LowStock())))
	return nil
}

// List returns a copy of all products in catalog order
func (c *Catalog) List() []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Get returns a copy of one product
func (c *Catalog) Get(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return c.products[i], true
	}
	return models.Product{}, false
}

// StockOf returns current stock, 0 for unknown products
func (c *Catalog) StockOf(id string) int {
	p, ok := c.Get(id)
	if !ok {
		return 0
	}
	return p.Stock
}

// LowStock returns products at or below their minimum stock
func (c *Catalog) LowStock() []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.Product
	for _, p := range c.products {
		if p.IsLowStock() {
			out = append(out, p)
		}
	}
	return out
}

// ApplyDecrement reduces stock by quantity and returns the amount actually
// removed. Stock never goes below zero: a larger request is clamped and
// reported as ErrInventoryConflict.
func (c *Catalog) ApplyDecrement(id string, quantity int) (int, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("%w: negative quantity %d", ErrInvalidProduct, quantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return 0, fmt.Errorf("%w: product %s is not in the catalog", ErrInventoryConflict, id)
	}

	p := &c.products[i]
	if quantity > p.Stock {
		applied := p.Stock
		p.Stock = 0
		c.logger.Warn("Stock decrement clamped",
			zap.String("product_id", id),
			zap.Int("requested", quantity),
			zap.Int("applied", applied))
		return applied, fmt.Errorf("%w: product %s requested %d, available %d", ErrInventoryConflict, id, quantity, applied)
	}

	p.Stock -= quantity
	return quantity, nil
}

// Restock adds quantity back to a product. Checkout uses it to undo its own
// decrements before anything is recorded.
func (c *Catalog) Restock(id string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: negative quantity %d", ErrInvalidProduct, quantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	c.products[i].Stock += quantity
	return nil
}

// Upsert inserts or replaces a product in memory. The returned undo func
// restores the previous version of that product only, so concurrent
// decrements of other products survive a rollback. Persisting the change is
// the caller's job.
func (c *Catalog) Upsert(product models.Product) (undo func(), err error) {
	if err := validate(product); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(product.ID)
	if i >= 0 {
		previous := c.products[i]
		c.products[i] = product
		undo = func() { c.restore(previous, i) }
	} else {
		c.products = append(c.products, product)
		undo = func() { c.drop(product.ID) }
	}

	util.LowStockProducts.Set(float64(c.countLowStockLocked()))
	c.logger.Info("Product upserted", zap.String("product_id", product.ID))
	return undo, nil
}

// Remove deletes a product in memory and returns the undo func
func (c *Catalog) Remove(id string) (undo func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}

	previous := c.products[i]
	c.products = append(c.products[:i:i], c.products[i+1:]...)

	util.LowStockProducts.Set(float64(c.countLowStockLocked()))
	c.logger.Info("Product removed", zap.String("product_id", id))
	return func() { c.restore(previous, i) }, nil
}

// restore puts p back, replacing any product with its id or reinserting it
// at index.
func (c *Catalog) restore(p models.Product, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(p.ID); i >= 0 {
		c.products[i] = p
	} else {
		index = min(index, len(c.products))
		c.products = slices.Insert(c.products, index, p)
	}
	util.LowStockProducts.Set(float64(c.countLowStockLocked()))
}

func (c *Catalog) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(id); i >= 0 {
		c.products = slices.Delete(c.products, i, i+1)
	}
	util.LowStockProducts.Set(float64(c.countLowStockLocked()))
}

func (c *Catalog) countLowStockLocked() int {
	n := 0
	for _, p := range c.products {
		if p.IsLowStock() {
			n++
		}
	}
	return n
}

func (c *Catalog) indexOf(id string) int {
	for i := range c.products {
		if c.products[i].ID == id {
			return i
		}
	}
	return -1
}

func validate(p models.Product) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidProduct)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	case p.MinStock < 0:
		return fmt.Errorf("%w: minStock must not be negative", ErrInvalidProduct)
	}
	return nil
}
