package repository

import (
	"context"
	"time"

	"gateway-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatewayRepositoryInterface is the persistence surface used by the services
type GatewayRepositoryInterface interface {
	UpsertSettings(ctx context.Context, rows []models.GatewaySetting) error
	ListSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) ([]models.GatewaySetting, error)
	ListConfiguredGateways(ctx context.Context, tenantID string) ([]models.GatewayType, error)
	CreateGatewayLog(ctx context.Context, entry *models.GatewayLog) error
	ListGatewayLogs(ctx context.Context, tenantID string, gatewayType models.GatewayType, limit int) ([]models.GatewayLog, error)
	CreateNotification(ctx context.Context, n *models.GatewayNotification) error
	ListNotifications(ctx context.Context, tenantID string, transactionID string) ([]models.GatewayNotification, error)
}

// GatewayRepository handles gateway settings, logs and notifications
type GatewayRepository struct {
	db *gorm.DB
}

var _ GatewayRepositoryInterface = (*GatewayRepository)(nil)

// NewGatewayRepository creates a new gateway repository
func NewGatewayRepository(db *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

// UpsertSettings writes settings rows. Rows are overwritten, never deleted.
func (r *GatewayRepository) UpsertSettings(ctx context.Context, rows []models.GatewaySetting) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()
	for i := range rows {
		rows[i].UpdatedAt = now
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "gateway_type"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "encrypted", "updated_at"}),
	}).Create(&rows).Error
}

// ListSettings lists the stored settings rows of a tenant's gateway
func (r *GatewayRepository) ListSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) ([]models.GatewaySetting, error) {
	var rows []models.GatewaySetting
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND gateway_type = ?", tenantID, gatewayType).
		Order("key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListConfiguredGateways lists the gateways a tenant has saved settings for
func (r *GatewayRepository) ListConfiguredGateways(ctx context.Context, tenantID string) ([]models.GatewayType, error) {
	var types []models.GatewayType
	err := r.db.WithContext(ctx).
		Model(&models.GatewaySetting{}).
		Where("tenant_id = ?", tenantID).
		Distinct().
		Order("gateway_type ASC").
		Pluck("gateway_type", &types).Error
	if err != nil {
		return nil, err
	}
	return types, nil
}

// CreateGatewayLog stores one masked request or response record
func (r *GatewayRepository) CreateGatewayLog(ctx context.Context, entry *models.GatewayLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListGatewayLogs lists the most recent log records of a tenant's gateway
func (r *GatewayRepository) ListGatewayLogs(ctx context.Context, tenantID string, gatewayType models.GatewayType, limit int) ([]models.GatewayLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.GatewayLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND gateway_type = ?", tenantID, gatewayType).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// CreateNotification records an inbound processor callback
func (r *GatewayRepository) CreateNotification(ctx context.Context, n *models.GatewayNotification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// ListNotifications lists the callbacks recorded for a transaction
func (r *GatewayRepository) ListNotifications(ctx context.Context, tenantID string, transactionID string) ([]models.GatewayNotification, error) {
	var notifications []models.GatewayNotification
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND transaction_id = ?", tenantID, transactionID).
		Order("created_at ASC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}
