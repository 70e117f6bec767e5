// Package advisor asks a generative model for business insights, stock
// predictions and free-form answers about the store's sales and inventory.
// It is advisory only and never mutates state.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// recentSales is how many of the latest sales feed the insights prompt
const recentSales = 20

var ErrAdvisorDisabled = errors.New("advisor is not configured")

// Advisor wraps a Generator in a circuit breaker
type Advisor struct {
	generator Generator
	breaker   *gobreaker.CircuitBreaker[string]
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates an advisor. A nil generator yields a disabled advisor.
func New(generator Generator, timeout time.Duration) *Advisor {
	logger := util.ComponentLogger("advisor")

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "advisor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Advisor{
		generator: generator,
		breaker:   breaker,
		timeout:   timeout,
		logger:    logger,
	}
}

// Enabled reports whether a generator is configured
func (a *Advisor) Enabled() bool {
	return a.generator != nil
}

// Insights returns 3-4 observations about recent sales. Any failure yields an
// empty list.
func (a *Advisor) Insights(ctx context.Context, sales []models.Sale, products []models.Product) []models.Insight {
	ctx, span := util.StartSpan(ctx, "Advisor.Insights")
	defer span.End()

	if len(sales) > recentSales {
		sales = sales[len(sales)-recentSales:]
	}

	prompt := fmt.Sprintf(`Analyze this POS data and return 3-4 key business insights as a JSON array.
Sales: %s
Inventory: %s

Each insight must have:
- title (string)
- description (string)
- impact ('positive' | 'negative' | 'neutral')
- recommendation (string)`, toJSON(sales), toJSON(products))

	return generateList[models.Insight](ctx, a, "insights", prompt, insightsSchema)
}

// StockPredictions estimates days of stock left per product. Any failure
// yields an empty list.
func (a *Advisor) StockPredictions(ctx context.Context, products []models.Product) []models.StockPrediction {
	ctx, span := util.StartSpan(ctx, "Advisor.StockPredictions")
	defer span.End()

	prompt := fmt.Sprintf(`Analyze this inventory and predict low-stock issues. Return a JSON array.
Inventory: %s

Include fields:
- productId
- productName
- currentStock
- predictedDaysLeft (estimate)
- status ('critical' | 'warning' | 'safe')`, toJSON(products))

	return generateList[models.StockPrediction](ctx, a, "predictions", prompt, predictionsSchema)
}

// Chat answers a free-form question with the catalog and a sales summary as
// context.
func (a *Advisor) Chat(ctx context.Context, query string, sales []models.Sale, products []models.Product) (string, error) {
	ctx, span := util.StartSpan(ctx, "Advisor.Chat")
	defer span.End()

	if !a.Enabled() {
		return "", ErrAdvisorDisabled
	}
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is required")
	}

	lastSale := "N/A"
	if len(sales) > 0 {
		lastSale = sales[len(sales)-1].Timestamp.Format(time.RFC3339)
	}

	prompt := fmt.Sprintf(`Context: You are an AI business advisor for a POS system.
Current Products: %s
Recent Sales Summary: Total %d transactions, Last sale: %s.

User Question: %s`, toJSON(products), len(sales), lastSale, query)

	answer, err := a.generate(ctx, "chat", prompt, nil)
	if err != nil {
		return "", fmt.Errorf("advisor chat failed: %w", err)
	}
	return answer, nil
}

// generateList decodes a JSON array answer. Failures are logged and yield an
// empty, non-nil list.
func generateList[T any](ctx context.Context, a *Advisor, kind, prompt string, schema *genai.Schema) []T {
	if !a.Enabled() {
		return []T{}
	}

	text, err := a.generate(ctx, kind, prompt, schema)
	if err != nil {
		a.logger.Warn("Advisor request failed", zap.String("kind", kind), zap.Error(err))
		return []T{}
	}

	var out []T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		util.AdvisorRequestsTotal.WithLabelValues(kind, "bad_response").Inc()
		a.logger.Warn("Advisor returned malformed JSON", zap.String("kind", kind), zap.Error(err))
		return []T{}
	}
	if out == nil {
		return []T{}
	}
	return out
}

func (a *Advisor) generate(ctx context.Context, kind, prompt string, schema *genai.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.breaker.Execute(func() (string, error) {
		return a.generator.Generate(ctx, prompt, schema)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
		}
		util.AdvisorRequestsTotal.WithLabelValues(kind, outcome).Inc()
		return "", err
	}

	util.AdvisorRequestsTotal.WithLabelValues(kind, "ok").Inc()
	return text, nil
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
