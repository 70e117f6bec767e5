package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCompleted  = "SALE_COMPLETED"
	EventTypeCatalogUpdated = "CATALOG_UPDATED"
)

// Catalog actions
const (
	CatalogActionUpserted = "UPSERTED"
	CatalogActionRemoved  = "REMOVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published after a sale is committed
type SaleCompletedEvent struct {
	BaseEvent
	SaleID        string          `json:"sale_id"`
	CashierID     string          `json:"cashier_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Items         []SaleItemData  `json:"items"`
}

// CatalogUpdatedEvent published when the catalog is edited
type CatalogUpdatedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Action    string `json:"action"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
