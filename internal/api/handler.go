package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/advisor"
	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/ledger"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const (
	sessionHeader = "X-Session-ID"
	sessionKey    = "session"

	defaultReportDays = 7
	maxReportDays     = 90
)

// Handler contains HTTP handlers
type Handler struct {
	users     *service.UserDirectory
	sessions  *service.SessionManager
	inventory *service.InventoryService
	finalizer *service.Finalizer
	ledger    *ledger.Ledger
	advisor   *advisor.Advisor
}

// NewHandler creates a new HTTP handler
func NewHandler(
	users *service.UserDirectory,
	sessions *service.SessionManager,
	inventory *service.InventoryService,
	finalizer *service.Finalizer,
	ledger *ledger.Ledger,
	advisor *advisor.Advisor,
) *Handler {
	return &Handler{
		users:     users,
		sessions:  sessions,
		inventory: inventory,
		finalizer: finalizer,
		ledger:    ledger,
		advisor:   advisor,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/sessions", h.login)

	authed := v1.Group("", h.requireSession)
	{
		authed.DELETE("/sessions", h.logout)

		authed.GET("/products", h.listProducts)

		authed.GET("/cart", h.getCart)
		authed.POST("/cart/items", h.addCartItem)
		authed.PATCH("/cart/items/:id", h.updateCartItem)
		authed.DELETE("/cart", h.clearCart)
		authed.POST("/checkout", h.checkout)

		authed.GET("/sales", h.listSales)
		authed.GET("/dashboard", h.dashboard)

		authed.GET("/advisor/insights", h.insights)
		authed.GET("/advisor/predictions", h.predictions)
		authed.POST("/advisor/chat", h.chat)
	}

	admin := authed.Group("", requireAdmin)
	{
		admin.GET("/products/low-stock", h.lowStock)
		admin.GET("/reports/summary", h.reportSummary)
		admin.PUT("/products/:id", h.upsertProduct)
		admin.DELETE("/products/:id", h.removeProduct)
		admin.POST("/admin/persist", h.retryPersist)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports unpersisted state so operators can see it
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ready",
		"persist_pending": h.finalizer.PersistPending(),
		"time":            time.Now().Unix(),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	session := h.sessions.Open(user)
	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"user":       session.User,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Close(currentSession(c).ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"products": cart.Filter(h.inventory.Products(), c.Query("q")),
	})
}

func (h *Handler) lowStock(c *gin.Context) {
	products := h.inventory.LowStock()
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type productRequest struct {
	Name     string          `json:"name" binding:"required"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	MinStock int             `json:"minStock"`
}

func (h *Handler) upsertProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product := models.Product{
		ID:       c.Param("id"),
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Stock:    req.Stock,
		MinStock: req.MinStock,
	}
	if err := h.inventory.UpsertProduct(c.Request.Context(), product); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) removeProduct(c *gin.Context) {
	if err := h.inventory.RemoveProduct(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, cartView(currentSession(c).Cart, true))
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, ok := h.inventory.Product(req.ProductID)
	if !ok {
		writeError(c, catalog.ErrProductNotFound)
		return
	}

	sessionCart := currentSession(c).Cart
	applied := sessionCart.AddItem(product)
	if !applied {
		util.CartClampsTotal.Inc()
	}
	c.JSON(http.StatusOK, cartView(sessionCart, applied))
}

type updateItemRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id := c.Param("id")
	sessionCart := currentSession(c).Cart
	if sessionCart.Quantity(id) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not in cart"})
		return
	}

	applied := sessionCart.UpdateQuantity(id, req.Delta, h.inventory.StockOf(id))
	if !applied {
		util.CartClampsTotal.Inc()
	}
	c.JSON(http.StatusOK, cartView(sessionCart, applied))
}

func (h *Handler) clearCart(c *gin.Context) {
	sessionCart := currentSession(c).Cart
	if sessionCart.Committing() {
		writeError(c, service.ErrFinalizeInProgress)
		return
	}
	sessionCart.Clear()
	c.Status(http.StatusNoContent)
}

type checkoutRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" binding:"required"`
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session := currentSession(c)
	sale, err := h.finalizer.Finalize(c.Request.Context(), session.Cart, session.User, req.PaymentMethod)

	var persistErr *service.PersistenceError
	if errors.As(err, &persistErr) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Sale recorded but not yet persisted",
			"details": err.Error(),
			"sale":    sale,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) listSales(c *gin.Context) {
	sales := h.ledger.List()
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		sales = h.ledger.Recent(limit)
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

// dashboard is the summary without the per-category breakdown
func (h *Handler) dashboard(c *gin.Context) {
	summary, ok := h.summarize(c)
	if !ok {
		return
	}
	summary.ByCategory = nil
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) reportSummary(c *gin.Context) {
	summary, ok := h.summarize(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) summarize(c *gin.Context) (models.SalesSummary, bool) {
	days := defaultReportDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxReportDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and " + strconv.Itoa(maxReportDays)})
			return models.SalesSummary{}, false
		}
		days = n
	}
	return ledger.Summarize(h.ledger.List(), h.inventory.Products(), time.Now(), days), true
}

func (h *Handler) retryPersist(c *gin.Context) {
	if err := h.finalizer.RetryPersist(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"persist_pending": h.finalizer.PersistPending()})
}

func (h *Handler) insights(c *gin.Context) {
	insights := h.advisor.Insights(c.Request.Context(), h.ledger.List(), h.inventory.Products())
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

func (h *Handler) predictions(c *gin.Context) {
	predictions := h.advisor.StockPredictions(c.Request.Context(), h.inventory.Products())
	c.JSON(http.StatusOK, gin.H{"predictions": predictions})
}

type chatRequest struct {
	Query string `json:"query" binding:"required"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	answer, err := h.advisor.Chat(c.Request.Context(), req.Query, h.ledger.List(), h.inventory.Products())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (h *Handler) requireSession(c *gin.Context) {
	session, err := h.sessions.Get(c.GetHeader(sessionHeader))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or unknown session"})
		return
	}
	c.Set(sessionKey, session)
	c.Next()
}

func requireAdmin(c *gin.Context) {
	if currentSession(c).User.Role != models.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
		return
	}
	c.Next()
}

func currentSession(c *gin.Context) *service.Session {
	return c.MustGet(sessionKey).(*service.Session)
}

func cartView(sessionCart *cart.Cart, applied bool) gin.H {
	return gin.H{
		"items":   sessionCart.Lines(),
		"total":   sessionCart.Total(),
		"applied": applied,
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
