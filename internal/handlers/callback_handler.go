package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
	"gateway-service/internal/services"
)

// maxCallbackBody caps the size of a processor notification
const maxCallbackBody = 1 << 20

// CallbackService is the callback surface used by the callback handler
type CallbackService interface {
	HandleNotification(ctx context.Context, tenantID string, gatewayType models.GatewayType, cb *gateway.Callback) (*services.NotificationOutcome, error)
	HandleReturn(ctx context.Context, tenantID string, gatewayType models.GatewayType, cb *gateway.Callback) (*models.TransactionResult, error)
}

// CallbackHandler receives processor notifications and payer returns
type CallbackHandler struct {
	service CallbackService
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(service CallbackService) *CallbackHandler {
	return &CallbackHandler{service: service}
}

// Notify handles GET and POST /callback/:gateway. Processors resend until they
// get a 2xx, so only authenticated notifications are acknowledged.
func (h *CallbackHandler) Notify(c *gin.Context) {
	gt, tenantID, cb, ok := h.parse(c)
	if !ok {
		return
	}

	outcome, err := h.service.HandleNotification(c.Request.Context(), tenantID, gt, cb)
	if err != nil {
		var verrs gateway.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, models.ValidationErrorResponse{
				Error:  "Notification rejected",
				Fields: verrs,
			})
			return
		}
		writeError(c, "Failed to process notification", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome.Outcome,
		"status":  outcome.Result.Status,
	})
}

// Return handles GET and POST /return/:gateway
func (h *CallbackHandler) Return(c *gin.Context) {
	gt, tenantID, cb, ok := h.parse(c)
	if !ok {
		return
	}

	result, err := h.service.HandleReturn(c.Request.Context(), tenantID, gt, cb)
	if err != nil {
		writeError(c, "Failed to process return", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// parse reads the gateway, the tenant and the callback values. The tenant
// comes from the tenant_id query parameter the notify URL was built with.
func (h *CallbackHandler) parse(c *gin.Context) (models.GatewayType, string, *gateway.Callback, bool) {
	gt, ok := gatewayParam(c)
	if !ok {
		return "", "", nil, false
	}

	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		tenantID = getTenantID(c)
	}
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Missing tenant ID",
			Message: "tenant_id query parameter is required",
		})
		return "", "", nil, false
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Failed to read request body",
			Message: err.Error(),
		})
		return "", "", nil, false
	}

	post, err := parseCallbackBody(c.ContentType(), body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid callback body",
			Message: err.Error(),
		})
		return "", "", nil, false
	}

	cb := gateway.NewCallback(c.Request.URL.Query(), post)
	cb.Body = string(body)
	return gt, tenantID, cb, true
}

// parseCallbackBody decodes form and JSON notification bodies into values.
// Top-level JSON scalars become values; nested objects are kept as JSON text.
func parseCallbackBody(contentType string, body []byte) (url.Values, error) {
	if len(body) == 0 {
		return url.Values{}, nil
	}

	if strings.Contains(contentType, "json") {
		var doc map[string]any
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&doc); err != nil {
			return nil, err
		}
		values := url.Values{}
		for k, v := range doc {
			switch t := v.(type) {
			case nil:
			case string:
				values.Set(k, t)
			case json.Number:
				values.Set(k, t.String())
			case bool:
				values.Set(k, strconv.FormatBool(t))
			default:
				raw, err := json.Marshal(t)
				if err != nil {
					return nil, err
				}
				values.Set(k, string(raw))
			}
		}
		return values, nil
	}

	return url.ParseQuery(string(body))
}
