package models

// Insight is a business observation returned by the advisory service
type Insight struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

// Insight impacts
const (
	ImpactPositive = "positive"
	ImpactNegative = "negative"
	ImpactNeutral  = "neutral"
)

// StockPrediction estimates how long a product's stock will last
type StockPrediction struct {
	ProductID         string  `json:"productId"`
	ProductName       string  `json:"productName"`
	CurrentStock      int     `json:"currentStock"`
	PredictedDaysLeft float64 `json:"predictedDaysLeft"`
	Status            string  `json:"status"`
}

// Prediction statuses
const (
	StockStatusCritical = "critical"
	StockStatusWarning  = "warning"
	StockStatusSafe     = "safe"
)
