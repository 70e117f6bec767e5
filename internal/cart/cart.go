// Package cart accumulates the pending line items of one checkout session.
//
// A cart validates quantities against the product snapshot it is handed and
// never touches the catalog. Requests that would exceed stock are clamped
// rather than rejected; every mutating method reports whether the requested
// change was applied in full.
package cart

import (
	"strings"
	"sync"
	"sync/atomic"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// Cart is an ordered set of lines keyed by product id, in first-added order
type Cart struct {
	mu    sync.Mutex
	lines []models.CartLine

	committing atomic.Bool
}

// New creates an empty cart
func New() *Cart {
	return &Cart{}
}

// AddItem adds one unit of product. It is a no-op when the product is out of
// stock, when one more unit would exceed product.Stock, or while the cart is
// being committed.
func (c *Cart) AddItem(product models.Product) bool {
	if product.Stock <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committing.Load() {
		return false
	}

	if i := c.indexOf(product.ID); i >= 0 {
		line := &c.lines[i]
		if line.Quantity+1 > product.Stock {
			return false
		}
		setQuantity(line, line.Quantity+1)
		return true
	}

	c.lines = append(c.lines, models.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  1,
		UnitPrice: product.Price,
		LineTotal: product.Price,
	})
	return true
}

// UpdateQuantity changes a line by delta. The result is floored at zero and
// capped at stock; a line reaching zero is removed. It returns false when the
// product is not in the cart or the result had to be capped.
func (c *Cart) UpdateQuantity(productID string, delta, stock int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committing.Load() {
		return false
	}

	i := c.indexOf(productID)
	if i < 0 {
		return false
	}

	applied := true
	quantity := max(0, c.lines[i].Quantity+delta)
	if quantity > stock {
		quantity = max(0, stock)
		applied = false
	}

	if quantity == 0 {
		c.lines = append(c.lines[:i:i], c.lines[i+1:]...)
		return applied
	}

	setQuantity(&c.lines[i], quantity)
	return applied
}

// Total is the sum of all line totals
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// Lines returns a copy of the lines in insertion order
func (c *Cart) Lines() []models.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Quantity returns the quantity held for a product, 0 if absent
func (c *Cart) Quantity(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// Len returns the number of lines
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Clear discards all lines
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// BeginCommit marks the cart as being finalized. It returns false if a
// finalize is already in flight. Mutations are checked against the flag
// under the same lock, so none can land between BeginCommit and the
// committed snapshot.
func (c *Cart) BeginCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committing.CompareAndSwap(false, true)
}

// EndCommit returns the cart to idle
func (c *Cart) EndCommit() {
	c.committing.Store(false)
}

// Committing reports whether a finalize is in flight
func (c *Cart) Committing() bool {
	return c.committing.Load()
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func setQuantity(line *models.CartLine, quantity int) {
	line.Quantity = quantity
	line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Filter returns the products whose name or category contains term,
// ignoring case. An empty term matches everything.
func Filter(products []models.Product, term string) []models.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return products
	}

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Category), term) {
			out = append(out, p)
		}
	}
	return out
}
