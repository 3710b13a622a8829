package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys for tenant information
type contextKey string

const (
	TenantIDKey  contextKey = "tenantID"
	UserIDKey    contextKey = "userID"
	RequestIDKey contextKey = "requestID"
)

// TenantContext holds tenant-related context
type TenantContext struct {
	TenantID   string
	UserID     string
	RequestID  string
	IsInternal bool
}

// TenantMiddleware extracts tenant information from headers.
// IstioAuth sets tenant_id and user_id from JWT claims; the X-* headers are
// the fallback for internal callers.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		// Processor routes carry their tenant in the query string
		if isProcessorRoute(path) || path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		tenantID := c.GetString("tenant_id")
		if tenantID == "" {
			tenantID = c.GetHeader("X-Tenant-ID")
		}

		userID := c.GetString("user_id")
		if userID == "" {
			userID = c.GetHeader("X-User-ID")
		}

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		tc := &TenantContext{
			TenantID:   tenantID,
			UserID:     userID,
			RequestID:  requestID,
			IsInternal: c.GetHeader("X-Internal-Service") != "",
		}

		ctx := context.WithValue(c.Request.Context(), TenantIDKey, tenantID)
		ctx = context.WithValue(ctx, UserIDKey, userID)
		ctx = context.WithValue(ctx, RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Set("tenantContext", tc)
		c.Set("tenantID", tenantID)
		c.Set("userID", userID)
		c.Set("requestID", requestID)

		c.Next()
	}
}

// RequireTenantID middleware ensures tenant ID is present
func RequireTenantID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("tenantID") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Tenant ID is required",
			})
			return
		}
		c.Next()
	}
}

// GetTenantID extracts tenant ID from context
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(TenantIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetTenantContext gets the full tenant context from Gin context
func GetTenantContext(c *gin.Context) *TenantContext {
	if tc, exists := c.Get("tenantContext"); exists {
		return tc.(*TenantContext)
	}
	return nil
}
