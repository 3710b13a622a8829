package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gateway-service/internal/models"
)

// ActivityReader reads the masked gateway log and the notification history
type ActivityReader interface {
	ListGatewayLogs(ctx context.Context, tenantID string, gatewayType models.GatewayType, limit int) ([]models.GatewayLog, error)
	ListNotifications(ctx context.Context, tenantID string, transactionID string) ([]models.GatewayNotification, error)
}

// ActivityHandler exposes gateway traffic for support staff
type ActivityHandler struct {
	repo ActivityReader
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(repo ActivityReader) *ActivityHandler {
	return &ActivityHandler{repo: repo}
}

// ListLogs handles GET /api/v1/gateways/:gateway/logs?limit=
func (h *ActivityHandler) ListLogs(c *gin.Context) {
	gt, ok := gatewayParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.repo.ListGatewayLogs(c.Request.Context(), getTenantID(c), gt, limit)
	if err != nil {
		writeError(c, "Failed to list gateway logs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// ListNotifications handles GET /api/v1/notifications?transaction_id=
func (h *ActivityHandler) ListNotifications(c *gin.Context) {
	transactionID := c.Query("transaction_id")
	if transactionID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: "transaction_id query parameter is required",
		})
		return
	}

	notifications, err := h.repo.ListNotifications(c.Request.Context(), getTenantID(c), transactionID)
	if err != nil {
		writeError(c, "Failed to list notifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
