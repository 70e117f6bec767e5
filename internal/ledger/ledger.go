package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

var ErrDuplicateSale = errors.New("sale already recorded")

// Ledger is the append-only, chronologically ordered list of committed sales
type Ledger struct {
	store   store.Store
	timeout time.Duration

	mu    sync.RWMutex
	sales []models.Sale
	ids   map[string]struct{}
}

// New creates an empty ledger. Call Load before use.
func New(s store.Store, timeout time.Duration) *Ledger {
	return &Ledger{
		store:   s,
		timeout: timeout,
		ids:     make(map[string]struct{}),
	}
}

// Load reads the sales collection. A missing collection is an empty ledger.
func (l *Ledger) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var sales []models.Sale
	if _, err := store.LoadInto(ctx, l.store, models.CollectionSales, &sales); err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(sales))
	for _, s := range sales {
		ids[s.ID] = struct{}{}
	}

	l.mu.Lock()
	l.sales = sales
	l.ids = ids
	l.mu.Unlock()
	return nil
}

// Append records a sale. A sale id can only be recorded once.
func (l *Ledger) Append(sale models.Sale) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[sale.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSale, sale.ID)
	}

	l.sales = append(l.sales, sale.Clone())
	l.ids[sale.ID] = struct{}{}
	return nil
}

// Contains reports whether a sale id has been recorded
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// List returns every sale, oldest first
func (l *Ledger) List() []models.Sale {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneAll(l.sales)
}

// Recent returns the last n sales, oldest first
func (l *Ledger) Recent(n int) []models.Sale {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return []models.Sale{}
	}
	start := max(0, len(l.sales)-n)
	return cloneAll(l.sales[start:])
}

// Len returns the number of recorded sales
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sales)
}

func cloneAll(sales []models.Sale) []models.Sale {
	out := make([]models.Sale, len(sales))
	for i, s := range sales {
		out[i] = s.Clone()
	}
	return out
}
