package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_completed_total",
		Help: "Total number of committed sales",
	}, []string{"payment_method"})

	SalesRevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_revenue_total",
		Help: "Sum of committed sale totals",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_failed_total",
		Help: "Total number of rejected or failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_checkout_latency_seconds",
		Help:    "Latency of checkout finalization",
		Buckets: prometheus.DefBuckets,
	})

	PersistLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_persist_latency_seconds",
		Help:    "Latency of snapshot persistence",
		Buckets: prometheus.DefBuckets,
	})

	PersistFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_persist_failures_total",
		Help: "Total number of failed snapshot writes",
	}, []string{"operation"})

	PersistPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_persist_pending",
		Help: "1 while in-memory state has not been persisted",
	})

	CartClampsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_cart_clamps_total",
		Help: "Total number of cart changes clamped to available stock",
	})

	LowStockProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_low_stock_products",
		Help: "Number of products at or below their minimum stock",
	})

	AdvisorRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_advisor_requests_total",
		Help: "Total number of advisory requests",
	}, []string{"kind", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
