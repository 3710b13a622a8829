package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gateway-service/internal/models"
)

// PaymentService is the payment surface used by the payment handler
type PaymentService interface {
	ChargeCard(ctx context.Context, tenantID string, gatewayType models.GatewayType, charge *models.CardCharge) (*models.TransactionResult, error)
	AuthorizeCard(ctx context.Context, tenantID string, gatewayType models.GatewayType, charge *models.CardCharge) (*models.TransactionResult, error)
	Capture(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error)
	Void(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error)
	Refund(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error)
	BuildProcess(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.BuildProcessRequest) (*models.ProcessFormResponse, error)
}

// PaymentHandler handles billing-core payment requests
type PaymentHandler struct {
	service PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(service PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type chargeFunc func(ctx context.Context, tenantID string, gatewayType models.GatewayType, charge *models.CardCharge) (*models.TransactionResult, error)

type actionFunc func(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error)

// Charge handles POST /api/v1/gateways/:gateway/charge
func (h *PaymentHandler) Charge(c *gin.Context) {
	h.handleCharge(c, "Charge failed", h.service.ChargeCard)
}

// Authorize handles POST /api/v1/gateways/:gateway/authorize
func (h *PaymentHandler) Authorize(c *gin.Context) {
	h.handleCharge(c, "Authorization failed", h.service.AuthorizeCard)
}

// Capture handles POST /api/v1/gateways/:gateway/capture
func (h *PaymentHandler) Capture(c *gin.Context) {
	h.handleAction(c, "Capture failed", h.service.Capture)
}

// Void handles POST /api/v1/gateways/:gateway/void
func (h *PaymentHandler) Void(c *gin.Context) {
	h.handleAction(c, "Void failed", h.service.Void)
}

// Refund handles POST /api/v1/gateways/:gateway/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	h.handleAction(c, "Refund failed", h.service.Refund)
}

func (h *PaymentHandler) handleCharge(c *gin.Context, title string, run chargeFunc) {
	gt, ok := gatewayParam(c)
	if !ok {
		return
	}

	var req models.ChargeCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	result, err := run(c.Request.Context(), getTenantID(c), gt, req.ToCardCharge())
	if err != nil {
		writeError(c, title, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) handleAction(c *gin.Context, title string, run actionFunc) {
	gt, ok := gatewayParam(c)
	if !ok {
		return
	}

	var req models.TransactionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	result, err := run(c.Request.Context(), getTenantID(c), gt, &req)
	if err != nil {
		writeError(c, title, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BuildProcess handles POST /api/v1/gateways/:gateway/build-process
func (h *PaymentHandler) BuildProcess(c *gin.Context) {
	gt, ok := gatewayParam(c)
	if !ok {
		return
	}

	var req models.BuildProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	form, err := h.service.BuildProcess(c.Request.Context(), getTenantID(c), gt, &req)
	if err != nil {
		writeError(c, "Failed to build payment form", err)
		return
	}

	c.JSON(http.StatusOK, form)
}
