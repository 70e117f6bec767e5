package ledger

import (
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// UncategorizedLabel groups lines whose product has left the catalog
const UncategorizedLabel = "Uncategorized"

const dayLayout = "2006-01-02"

// Summarize aggregates sales against the current catalog. Daily holds the
// last days UTC days ending on now's date, oldest first, with empty days
// zero-filled. Categories follow catalog order.
func Summarize(sales []models.Sale, products []models.Product, now time.Time, days int) models.SalesSummary {
	summary := models.SalesSummary{
		TotalRevenue:        decimal.Zero,
		AverageSale:         decimal.Zero,
		AverageUnitsPerSale: decimal.Zero,
		Transactions:        len(sales),
		Daily:               make([]models.DailyRevenue, 0, max(days, 0)),
		ByCategory:          []models.CategoryRevenue{},
	}

	for _, p := range products {
		if p.IsLowStock() {
			summary.LowStockCount++
		}
	}

	today := now.UTC().Truncate(24 * time.Hour)
	dayIndex := make(map[string]int, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(dayLayout)
		dayIndex[date] = len(summary.Daily)
		summary.Daily = append(summary.Daily, models.DailyRevenue{Date: date, Revenue: decimal.Zero})
	}

	categoryOf := make(map[string]string, len(products))
	categoryIndex := make(map[string]int)
	for _, p := range products {
		categoryOf[p.ID] = p.Category
		if _, ok := categoryIndex[p.Category]; !ok {
			categoryIndex[p.Category] = len(summary.ByCategory)
			summary.ByCategory = append(summary.ByCategory, models.CategoryRevenue{Category: p.Category, Revenue: decimal.Zero})
		}
	}

	for _, sale := range sales {
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.TotalAmount)

		if i, ok := dayIndex[sale.Timestamp.UTC().Format(dayLayout)]; ok {
			summary.Daily[i].Revenue = summary.Daily[i].Revenue.Add(sale.TotalAmount)
			summary.Daily[i].Transactions++
		}

		for _, line := range sale.Items {
			summary.UnitsSold += line.Quantity

			category, ok := categoryOf[line.ProductID]
			if !ok {
				category = UncategorizedLabel
			}
			i, ok := categoryIndex[category]
			if !ok {
				i = len(summary.ByCategory)
				categoryIndex[category] = i
				summary.ByCategory = append(summary.ByCategory, models.CategoryRevenue{Category: category, Revenue: decimal.Zero})
			}
			summary.ByCategory[i].Revenue = summary.ByCategory[i].Revenue.Add(line.LineTotal)
			summary.ByCategory[i].Units += line.Quantity
		}
	}

	if n := int64(len(sales)); n > 0 {
		summary.AverageSale = summary.TotalRevenue.DivRound(decimal.NewFromInt(n), 2)
		summary.AverageUnitsPerSale = decimal.NewFromInt(int64(summary.UnitsSold)).DivRound(decimal.NewFromInt(n), 2)
	}
	return summary
}
