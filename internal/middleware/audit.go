package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxAuditBody bounds how much of a request body is buffered for auditing
const maxAuditBody = 64 << 10

// AuditLog represents an audit log entry
type AuditLog struct {
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"requestId"`
	TenantID   string            `json:"tenantId"`
	UserID     string            `json:"userId"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	StatusCode int               `json:"statusCode"`
	Duration   time.Duration     `json:"duration"`
	ClientIP   string            `json:"clientIp"`
	UserAgent  string            `json:"userAgent"`
	Action     string            `json:"action,omitempty"`
	Gateway    string            `json:"gateway,omitempty"`
	Success    bool              `json:"success"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	Log(entry *AuditLog)
}

// LogrusAuditLogger writes audit entries as structured log lines
type LogrusAuditLogger struct {
	logger *logrus.Logger
}

// NewLogrusAuditLogger creates an audit logger on top of logger
func NewLogrusAuditLogger(logger *logrus.Logger) *LogrusAuditLogger {
	return &LogrusAuditLogger{logger: logger}
}

func (l *LogrusAuditLogger) Log(entry *AuditLog) {
	fields := logrus.Fields{
		"audit":       true,
		"request_id":  entry.RequestID,
		"tenant_id":   entry.TenantID,
		"user_id":     entry.UserID,
		"method":      entry.Method,
		"path":        entry.Path,
		"status_code": entry.StatusCode,
		"duration_ms": entry.Duration.Milliseconds(),
		"client_ip":   entry.ClientIP,
		"action":      entry.Action,
		"gateway":     entry.Gateway,
	}
	for k, v := range entry.Metadata {
		fields["meta_"+k] = v
	}

	e := l.logger.WithFields(fields)
	if entry.Success {
		e.Info("audit")
	} else {
		e.Warn("audit")
	}
}

// AuditMiddleware logs every gateway API call and processor notification
func AuditMiddleware(logger AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var body []byte
		if c.Request.Method == "POST" || c.Request.Method == "PUT" {
			body, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody))
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))
		}

		c.Next()

		action := parseGatewayAction(c.Request.Method, c.FullPath())
		if action == "" {
			return
		}

		status := c.Writer.Status()
		logger.Log(&AuditLog{
			Timestamp:  start,
			RequestID:  c.GetString("requestID"),
			TenantID:   auditTenant(c),
			UserID:     c.GetString("userID"),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: status,
			Duration:   time.Since(start),
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Action:     action,
			Gateway:    c.Param("gateway"),
			Success:    status < 400,
			Metadata:   extractGatewayMetadata(action, body),
		})
	}
}

func auditTenant(c *gin.Context) string {
	if t := c.GetString("tenantID"); t != "" {
		return t
	}
	return c.Query("tenant_id")
}

// parseGatewayAction maps a matched route onto an audit action. Reads other
// than settings are not audited.
func parseGatewayAction(method, route string) string {
	switch route {
	case "/api/v1/gateways/:gateway/charge":
		return "charge_card"
	case "/api/v1/gateways/:gateway/authorize":
		return "authorize_card"
	case "/api/v1/gateways/:gateway/capture":
		return "capture"
	case "/api/v1/gateways/:gateway/void":
		return "void"
	case "/api/v1/gateways/:gateway/refund":
		return "refund"
	case "/api/v1/gateways/:gateway/build-process":
		return "build_process"
	case "/api/v1/gateways/:gateway/settings":
		if method == "PUT" {
			return "update_settings"
		}
		return "read_settings"
	case "/callback/:gateway":
		return "notification_received"
	case "/return/:gateway":
		return "payer_returned"
	}
	return ""
}

// extractGatewayMetadata pulls amount and currency from API bodies and the
// names of changed settings. Card data and setting values are never copied.
func extractGatewayMetadata(action string, body []byte) map[string]string {
	if len(body) == 0 {
		return nil
	}

	switch action {
	case "charge_card", "authorize_card", "capture", "void", "refund", "build_process":
		var req struct {
			Amount        json.Number `json:"amount"`
			Currency      string      `json:"currency"`
			TransactionID string      `json:"transactionId"`
			Card          struct {
				Number string `json:"number"`
			} `json:"card"`
		}
		if json.Unmarshal(body, &req) != nil {
			return nil
		}
		meta := map[string]string{}
		if req.Amount != "" {
			meta["amount"] = req.Amount.String()
		}
		if req.Currency != "" {
			meta["currency"] = req.Currency
		}
		if req.TransactionID != "" {
			meta["transaction_id"] = req.TransactionID
		}
		if n := len(req.Card.Number); n >= 4 {
			meta["card_last4"] = req.Card.Number[n-4:]
		}
		return meta

	case "update_settings":
		var req struct {
			Settings map[string]any `json:"settings"`
		}
		if json.Unmarshal(body, &req) != nil {
			return nil
		}
		keys := make([]string, 0, len(req.Settings))
		for k := range req.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return map[string]string{"settings": strings.Join(keys, ",")}
	}
	return nil
}
