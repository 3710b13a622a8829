package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gateway-service/internal/encryption"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
)

// MaskedValue replaces encrypted settings in API responses. Submitting it back
// keeps the stored value.
const MaskedValue = "****"

// ErrGatewayNotConfigured is returned when a tenant has no settings for a gateway
var ErrGatewayNotConfigured = errors.New("gateway is not configured")

// SettingsStore persists gateway settings rows
type SettingsStore interface {
	UpsertSettings(ctx context.Context, rows []models.GatewaySetting) error
	ListSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) ([]models.GatewaySetting, error)
	ListConfiguredGateways(ctx context.Context, tenantID string) ([]models.GatewayType, error)
}

// SettingsService validates, encrypts and stores per-tenant gateway settings
type SettingsService struct {
	store     SettingsStore
	factory   *gateway.Factory
	encryptor encryption.Encryptor
	logger    *logrus.Entry
}

// NewSettingsService creates a new settings service
func NewSettingsService(store SettingsStore, factory *gateway.Factory, encryptor encryption.Encryptor, logger *logrus.Entry) *SettingsService {
	return &SettingsService{
		store:     store,
		factory:   factory,
		encryptor: encryptor,
		logger:    logger.WithField("component", "settings_service"),
	}
}

// SaveSettings runs the adapter's settings rules and stores the result.
// Validation failures store nothing and come back as ValidationErrors.
func (s *SettingsService) SaveSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType, input models.Settings) (models.Settings, error) {
	gw, err := s.factory.Create(gatewayType)
	if err != nil {
		return nil, err
	}

	candidate := input.Clone()
	if err := s.restoreMasked(ctx, tenantID, gatewayType, candidate); err != nil {
		return nil, err
	}

	settings, verrs := gw.EditSettings(candidate)
	if len(verrs) > 0 {
		return nil, verrs
	}

	encryptable := toSet(gw.EncryptableFields())
	rows := make([]models.GatewaySetting, 0, len(settings))
	for key, value := range settings {
		row := models.GatewaySetting{
			TenantID:    tenantID,
			GatewayType: gatewayType,
			Key:         key,
			Value:       value,
		}
		if encryptable[key] && value != "" {
			sealed, err := s.encryptor.Encrypt(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt %s: %w", key, err)
			}
			row.Value = sealed
			row.Encrypted = true
		}
		rows = append(rows, row)
	}

	if err := s.store.UpsertSettings(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"gateway":   gatewayType,
		"keys":      len(rows),
	}).Info("Gateway settings saved")

	return maskSettings(settings, encryptable), nil
}

// restoreMasked swaps masked placeholders for the stored plaintext
func (s *SettingsService) restoreMasked(ctx context.Context, tenantID string, gatewayType models.GatewayType, candidate models.Settings) error {
	hasMasked := false
	for _, v := range candidate {
		if v == MaskedValue {
			hasMasked = true
			break
		}
	}
	if !hasMasked {
		return nil
	}

	stored, err := s.LoadSettings(ctx, tenantID, gatewayType)
	if err != nil && !errors.Is(err, ErrGatewayNotConfigured) {
		return err
	}
	for k, v := range candidate {
		if v == MaskedValue {
			candidate[k] = stored.Get(k)
		}
	}
	return nil
}

// LoadSettings returns the decrypted settings of a tenant's gateway
func (s *SettingsService) LoadSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) (models.Settings, error) {
	rows, err := s.store.ListSettings(ctx, tenantID, gatewayType)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if len(rows) == 0 {
		return models.Settings{}, fmt.Errorf("%w: %s", ErrGatewayNotConfigured, gatewayType)
	}

	settings := make(models.Settings, len(rows))
	for _, row := range rows {
		value := row.Value
		if row.Encrypted {
			value, err = s.encryptor.Decrypt(row.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt %s: %w", row.Key, err)
			}
		}
		settings[row.Key] = value
	}
	return settings, nil
}

// GetSettings returns the stored settings with encryptable values masked
func (s *SettingsService) GetSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) (*models.SettingsResponse, error) {
	gw, err := s.factory.Create(gatewayType)
	if err != nil {
		return nil, err
	}

	settings, err := s.LoadSettings(ctx, tenantID, gatewayType)
	if err != nil {
		return nil, err
	}

	return &models.SettingsResponse{
		GatewayType: gatewayType,
		Settings:    maskSettings(settings, toSet(gw.EncryptableFields())),
	}, nil
}

// ListGateways describes every supported gateway
func (s *SettingsService) ListGateways() ([]models.GatewayInfoResponse, error) {
	types := gateway.SupportedGatewayTypes()
	out := make([]models.GatewayInfoResponse, 0, len(types))
	for _, gt := range types {
		gw, err := s.factory.Create(gt)
		if err != nil {
			return nil, err
		}
		out = append(out, models.GatewayInfoResponse{
			Type:              gt,
			Slug:              gt.Slug(),
			Name:              gw.Name(),
			Version:           gw.Version(),
			Authors:           gw.Authors(),
			Kind:              string(gateway.GatewayKind(gt)),
			Currencies:        gw.Currencies(),
			EncryptableFields: gw.EncryptableFields(),
		})
	}
	return out, nil
}

// ConfiguredGateways lists the gateways a tenant has saved settings for
func (s *SettingsService) ConfiguredGateways(ctx context.Context, tenantID string) ([]models.GatewayType, error) {
	return s.store.ListConfiguredGateways(ctx, tenantID)
}

func maskSettings(settings models.Settings, encryptable map[string]bool) models.Settings {
	out := settings.Clone()
	for k, v := range out {
		if encryptable[k] && v != "" {
			out[k] = MaskedValue
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
