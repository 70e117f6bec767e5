package catalog

import (
	"context"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadCatalog(t *testing.T, s store.Store) *Catalog {
	t.Helper()
	c := New(s, time.Second)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestLoad_SeedsDefaultsOnFirstRun(t *testing.T) {
	s := store.NewMemoryStore()
	c := loadCatalog(t, s)

	products := c.List()
	require.Len(t, products, 5)
	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, 45, c.StockOf("1"))

	var persisted []models.Product
	found, err := store.LoadInto(context.Background(), s, models.CollectionProducts, &persisted)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, persisted, 5)
}

func TestLoad_KeepsExistingSnapshot(t *testing.T) {
	s := store.NewMemoryStore()
	existing := []models.Product{{ID: "x", Name: "Tea", Category: "Beverages", Price: decimal.NewFromInt(2), Stock: 3}}
	require.NoError(t, store.SaveFrom(context.Background(), s, models.CollectionProducts, existing))

	c := loadCatalog(t, s)
	products := c.List()
	require.Len(t, products, 1)
	assert.Equal(t, "x", products[0].ID)
}

func TestList_ReturnsCopy(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	products := c.List()
	products[0].Stock = 0

	assert.Equal(t, 45, c.StockOf("1"))
}

func TestStockOf_UnknownProduct(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())
	assert.Equal(t, 0, c.StockOf("missing"))
}

func TestApplyDecrement(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	applied, err := c.ApplyDecrement("2", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, applied)
	assert.Equal(t, 7, c.StockOf("2"))
}

func TestApplyDecrement_ClampsAtZero(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	applied, err := c.ApplyDecrement("4", 20)
	assert.ErrorIs(t, err, ErrInventoryConflict)
	assert.Equal(t, 8, applied)
	assert.Equal(t, 0, c.StockOf("4"))
}

func TestApplyDecrement_UnknownProduct(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	applied, err := c.ApplyDecrement("nope", 1)
	assert.ErrorIs(t, err, ErrInventoryConflict)
	assert.Zero(t, applied)
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	tea := models.Product{ID: "6", Name: "Green Tea", Category: "Beverages", Price: decimal.RequireFromString("5.10"), Stock: 30, MinStock: 5}
	_, err := c.Upsert(tea)
	require.NoError(t, err)
	assert.Equal(t, 30, c.StockOf("6"))

	tea.Stock = 25
	_, err = c.Upsert(tea)
	require.NoError(t, err)
	assert.Equal(t, 25, c.StockOf("6"))
	assert.Len(t, c.List(), 6)
}

func TestUpsert_RejectsInvalidProduct(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	tests := []struct {
		name    string
		product models.Product
	}{
		{"negative price", models.Product{ID: "7", Name: "Broken", Price: decimal.NewFromInt(-1)}},
		{"negative stock", models.Product{ID: "7", Name: "Broken", Stock: -2}},
		{"missing id", models.Product{Name: "No id"}},
		{"missing name", models.Product{ID: "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Upsert(tt.product)
			assert.ErrorIs(t, err, ErrInvalidProduct)
		})
	}
	assert.Len(t, c.List(), 5)
}

func TestUpsert_UndoRestoresOnlyThatProduct(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	undo, err := c.Upsert(models.Product{ID: "1", Name: "Coffee", Price: decimal.NewFromInt(1), Stock: 1})
	require.NoError(t, err)

	_, err = c.ApplyDecrement("2", 2)
	require.NoError(t, err)

	undo()
	p, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, 45, p.Stock)
	assert.Equal(t, "Organic Coffee Beans (1kg)", p.Name)
	assert.Equal(t, 10, c.StockOf("2"))
}

func TestUpsert_UndoDropsInsertedProduct(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	undo, err := c.Upsert(models.Product{ID: "9", Name: "Tea", Price: decimal.NewFromInt(1), Stock: 1})
	require.NoError(t, err)
	undo()

	_, ok := c.Get("9")
	assert.False(t, ok)
	assert.Len(t, c.List(), 5)
}

func TestRemove(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	_, err := c.Remove("3")
	require.NoError(t, err)
	_, ok := c.Get("3")
	assert.False(t, ok)
	assert.Len(t, c.List(), 4)

	_, err = c.Remove("3")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRemove_UndoReinsertsInPlace(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	undo, err := c.Remove("3")
	require.NoError(t, err)
	undo()

	ids := make([]string, 0, 5)
	for _, p := range c.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
}

func TestLowStock(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	low := c.LowStock()
	ids := make([]string, 0, len(low))
	for _, p := range low {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"2", "4"}, ids)
}

func TestRestock(t *testing.T) {
	c := loadCatalog(t, store.NewMemoryStore())

	_, err := c.ApplyDecrement("1", 5)
	require.NoError(t, err)
	require.NoError(t, c.Restock("1", 5))
	assert.Equal(t, 45, c.StockOf("1"))

	assert.ErrorIs(t, c.Restock("missing", 1), ErrProductNotFound)
	assert.ErrorIs(t, c.Restock("1", -1), ErrInvalidProduct)
}
