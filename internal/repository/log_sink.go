package repository

import (
	"context"

	"github.com/sirupsen/logrus"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
	"gorm.io/datatypes"
)

// LogStore persists gateway log records
type LogStore interface {
	CreateGatewayLog(ctx context.Context, entry *models.GatewayLog) error
}

// LogSink is a gateway.LogSink that stores masked records for one tenant.
// Storage failures are logged and never reach the gateway call.
type LogSink struct {
	store    LogStore
	tenantID string
	logger   *logrus.Entry
}

var _ gateway.LogSink = (*LogSink)(nil)

// NewLogSink creates a log sink bound to a tenant
func NewLogSink(store LogStore, tenantID string, logger *logrus.Entry) *LogSink {
	return &LogSink{
		store:    store,
		tenantID: tenantID,
		logger:   logger.WithField("component", "gateway.log_sink"),
	}
}

// Log stores the record
func (s *LogSink) Log(ctx context.Context, entry *gateway.LogEntry) {
	if entry == nil {
		return
	}

	record := &models.GatewayLog{
		TenantID:    s.tenantID,
		GatewayType: entry.Gateway,
		URL:         entry.URL,
		Direction:   entry.Direction,
		Payload:     datatypes.JSON(entry.Payload),
		Success:     entry.Success,
	}

	if err := s.store.CreateGatewayLog(ctx, record); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": s.tenantID,
			"gateway":   entry.Gateway,
			"direction": entry.Direction,
		}).Warn("Failed to store gateway log")
	}
}
