package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are persisted as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents a product in the catalog
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	MinStock int             `json:"minStock"`
}

// IsLowStock reports whether stock has reached the reorder threshold
func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

// CartLine is a pending line item. The same shape is snapshotted into a Sale.
type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"total"`
}

// PaymentMethod of a sale
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentMobile PaymentMethod = "MOBILE"
)

// Valid reports whether m is one of the accepted payment methods
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile:
		return true
	}
	return false
}

// Sale is a committed, immutable ledger entry
type Sale struct {
	ID            string          `json:"id"`
	Items         []CartLine      `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Timestamp     time.Time       `json:"timestamp"`
	CashierID     string          `json:"cashierId"`
	CashierName   string          `json:"cashierName"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
}

// Clone returns a copy that shares no item slice with s
func (s Sale) Clone() Sale {
	items := make([]CartLine, len(s.Items))
	copy(items, s.Items)
	s.Items = items
	return s
}

// Role of a user
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleCashier Role = "CASHIER"
)

// User is read-only reference data. Password holds a bcrypt hash.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role"`
}

// Public returns the user without its credential
func (u User) Public() User {
	u.Password = ""
	return u
}

// Persisted collection keys
const (
	CollectionProducts = "products"
	CollectionSales    = "sales"
	CollectionUsers    = "users"
)
