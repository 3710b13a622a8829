package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
	"gateway-service/internal/services"
)

// writeError maps service errors onto HTTP responses
func writeError(c *gin.Context, title string, err error) {
	var verrs gateway.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusUnprocessableEntity, models.ValidationErrorResponse{
			Error:  title,
			Fields: verrs,
		})
		return
	}

	var gwErr *gateway.GatewayError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   title,
			Message: gwErr.Message,
			Code:    gwErr.Code,
		})
		return
	case errors.Is(err, models.ErrUnknownGatewayType):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrGatewayNotConfigured):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvoiceSumMismatch),
		errors.Is(err, models.ErrInvalidCardExpiry),
		errors.Is(err, models.ErrMissingTransactionID):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrUnsupported),
		errors.Is(err, gateway.ErrCurrencyNotSupported),
		errors.Is(err, gateway.ErrNotCardGateway),
		errors.Is(err, gateway.ErrNotRedirectGateway):
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, models.ErrorResponse{
		Error:   title,
		Message: err.Error(),
	})
}

// gatewayParam parses the :gateway route parameter, e.g. "paypal-standard"
func gatewayParam(c *gin.Context) (models.GatewayType, bool) {
	gt, err := models.ParseGatewayType(c.Param("gateway"))
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Unknown gateway",
			Message: err.Error(),
		})
		return "", false
	}
	return gt, true
}

// getTenantID returns the tenant set by the tenant middleware
func getTenantID(c *gin.Context) string {
	return c.GetString("tenantID")
}
