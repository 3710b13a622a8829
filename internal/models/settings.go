package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Settings is the opaque key/value configuration of one gateway account
type Settings map[string]string

// Get returns the value for key, or "" when unset
func (s Settings) Get(key string) string {
	if s == nil {
		return ""
	}
	return s[key]
}

// Bool reports whether a flag setting is "true"
func (s Settings) Bool(key string) bool {
	return s.Get(key) == "true"
}

// Clone returns a shallow copy
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// GatewaySetting is one persisted settings value for a tenant's gateway
type GatewaySetting struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID    string      `gorm:"type:varchar(255);not null;uniqueIndex:idx_gateway_settings_key" json:"tenantId"`
	GatewayType GatewayType `gorm:"type:varchar(50);not null;uniqueIndex:idx_gateway_settings_key" json:"gatewayType"`
	Key         string      `gorm:"type:varchar(100);not null;uniqueIndex:idx_gateway_settings_key" json:"key"`
	Value       string      `gorm:"type:text" json:"-"` // Never expose in JSON
	Encrypted   bool        `gorm:"default:false" json:"encrypted"`
	CreatedAt   time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt   time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for GatewaySetting
func (GatewaySetting) TableName() string {
	return "gateway_settings"
}

// LogDirection tells whether a gateway log record was sent or received
type LogDirection string

const (
	LogDirectionInput  LogDirection = "input"
	LogDirectionOutput LogDirection = "output"
)

// GatewayLog is a masked request or response exchanged with a processor
type GatewayLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID    string         `gorm:"type:varchar(255);index:idx_gateway_logs_tenant" json:"tenantId"`
	GatewayType GatewayType    `gorm:"type:varchar(50);not null;index:idx_gateway_logs_gateway" json:"gatewayType"`
	URL         string         `gorm:"type:text" json:"url"`
	Direction   LogDirection   `gorm:"type:varchar(10);not null" json:"direction"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Success     bool           `gorm:"default:false" json:"success"`
	CreatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_gateway_logs_created" json:"createdAt"`
}

// TableName specifies the table name for GatewayLog
func (GatewayLog) TableName() string {
	return "gateway_logs"
}

// NotificationStatus tracks what happened to a processor callback
type NotificationStatus string

const (
	NotificationApplied   NotificationStatus = "applied"
	NotificationDuplicate NotificationStatus = "duplicate"
	NotificationRejected  NotificationStatus = "rejected"
)

// GatewayNotification records each inbound processor callback and its outcome
type GatewayNotification struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID      string             `gorm:"type:varchar(255);not null;index:idx_gateway_notifications_tenant" json:"tenantId"`
	GatewayType   GatewayType        `gorm:"type:varchar(50);not null" json:"gatewayType"`
	TransactionID string             `gorm:"type:varchar(255);index:idx_gateway_notifications_txn" json:"transactionId,omitempty"`
	ClientID      string             `gorm:"type:varchar(255)" json:"clientId,omitempty"`
	Status        TransactionStatus  `gorm:"type:varchar(20)" json:"status,omitempty"`
	Amount        string             `gorm:"type:varchar(50)" json:"amount,omitempty"`
	Currency      string             `gorm:"type:varchar(3)" json:"currency,omitempty"`
	Invoices      datatypes.JSON     `gorm:"type:jsonb" json:"invoices,omitempty"`
	Outcome       NotificationStatus `gorm:"type:varchar(20);not null" json:"outcome"`
	Errors        datatypes.JSON     `gorm:"type:jsonb" json:"errors,omitempty"`
	CreatedAt     time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for GatewayNotification
func (GatewayNotification) TableName() string {
	return "gateway_notifications"
}
