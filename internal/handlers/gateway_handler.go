package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gateway-service/internal/models"
)

// SettingsService is the settings surface used by the gateway handler
type SettingsService interface {
	SaveSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType, input models.Settings) (models.Settings, error)
	GetSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) (*models.SettingsResponse, error)
	ListGateways() ([]models.GatewayInfoResponse, error)
	ConfiguredGateways(ctx context.Context, tenantID string) ([]models.GatewayType, error)
}

// GatewayHandler handles gateway catalogue and settings requests
type GatewayHandler struct {
	service SettingsService
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(service SettingsService) *GatewayHandler {
	return &GatewayHandler{service: service}
}

// ListGateways handles GET /api/v1/gateways
func (h *GatewayHandler) ListGateways(c *gin.Context) {
	gateways, err := h.service.ListGateways()
	if err != nil {
		writeError(c, "Failed to list gateways", err)
		return
	}

	configured, err := h.service.ConfiguredGateways(c.Request.Context(), getTenantID(c))
	if err != nil {
		writeError(c, "Failed to list gateways", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gateways":   gateways,
		"configured": configured,
	})
}

// GetSettings handles GET /api/v1/gateways/:gateway/settings
func (h *GatewayHandler) GetSettings(c *gin.Context) {
	gt, ok := gatewayParam(c)
	if !ok {
		return
	}

	resp, err := h.service.GetSettings(c.Request.Context(), getTenantID(c), gt)
	if err != nil {
		writeError(c, "Failed to load settings", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateSettings handles PUT /api/v1/gateways/:gateway/settings
func (h *GatewayHandler) UpdateSettings(c *gin.Context) {
	gt, ok := gatewayParam(c)
	if !ok {
		return
	}

	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	settings, err := h.service.SaveSettings(c.Request.Context(), getTenantID(c), gt, models.Settings(req.Settings))
	if err != nil {
		writeError(c, "Invalid settings", err)
		return
	}

	c.JSON(http.StatusOK, models.SettingsResponse{
		GatewayType: gt,
		Settings:    settings,
	})
}
