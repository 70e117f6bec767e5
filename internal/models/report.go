package models

import "github.com/shopspring/decimal"

// SalesSummary aggregates the ledger for the dashboard and reports views
type SalesSummary struct {
	TotalRevenue        decimal.Decimal   `json:"totalRevenue"`
	Transactions        int               `json:"transactions"`
	UnitsSold           int               `json:"unitsSold"`
	AverageSale         decimal.Decimal   `json:"averageSale"`
	AverageUnitsPerSale decimal.Decimal   `json:"averageUnitsPerSale"`
	LowStockCount       int               `json:"lowStockCount"`
	Daily               []DailyRevenue    `json:"daily"`
	ByCategory          []CategoryRevenue `json:"byCategory,omitempty"`
}

// DailyRevenue is one UTC calendar day
type DailyRevenue struct {
	Date         string          `json:"date"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

// CategoryRevenue sums sold line totals by the product's current category
type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int             `json:"units"`
}
