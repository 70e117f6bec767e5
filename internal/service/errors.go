package service

import (
	"errors"
	"fmt"
	"strings"

	"pos-service/internal/catalog"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInventoryConflict    = catalog.ErrInventoryConflict
	ErrTotalMismatch        = errors.New("cart total does not match its lines")
	ErrPersistence          = errors.New("persistence failure")
	ErrFinalizeInProgress   = errors.New("checkout already in progress for this cart")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrSessionNotFound      = errors.New("session not found")
)

// InventoryConflictError names the products whose live stock no longer
// covers the requested quantity.
type InventoryConflictError struct {
	ProductIDs []string
}

func (e *InventoryConflictError) Error() string {
	return fmt.Sprintf("%s: insufficient stock for product(s) %s", ErrInventoryConflict, strings.Join(e.ProductIDs, ", "))
}

func (e *InventoryConflictError) Is(target error) bool {
	return target == ErrInventoryConflict
}

// PersistenceError is returned when a sale was applied in memory but the
// snapshot write failed. The sale must not be re-run; retry persistence.
type PersistenceError struct {
	SaleID string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.SaleID == "" {
		return fmt.Sprintf("%s: %v", ErrPersistence, e.Err)
	}
	return fmt.Sprintf("%s: sale %s applied but not persisted: %v", ErrPersistence, e.SaleID, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
