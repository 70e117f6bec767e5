package api

import (
	"errors"
	"net/http"

	"pos-service/internal/advisor"
	"pos-service/internal/catalog"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// writeError maps domain errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}

	var conflict *service.InventoryConflictError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body["product_ids"] = conflict.ProductIDs
	case errors.Is(err, service.ErrInventoryConflict),
		errors.Is(err, service.ErrFinalizeInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, catalog.ErrInvalidProduct):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrSessionNotFound):
		status = http.StatusUnauthorized
	case errors.Is(err, catalog.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrPersistence):
		status = http.StatusServiceUnavailable
	case errors.Is(err, advisor.ErrAdvisorDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}
