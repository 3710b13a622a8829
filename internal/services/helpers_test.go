package services

import (
	"bytes"
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"gateway-service/internal/encryption"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
)

// MockTransport is a mock implementation of gateway.Transport
type MockTransport struct {
	mock.Mock
}

var _ gateway.Transport = (*MockTransport)(nil)

func (m *MockTransport) Post(ctx context.Context, endpoint, body string, headers map[string]string) (string, error) {
	args := m.Called(ctx, endpoint, body, headers)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) Get(ctx context.Context, endpoint string, headers map[string]string) (string, error) {
	args := m.Called(ctx, endpoint, headers)
	return args.String(0), args.Error(1)
}

// MockSettingsStore is a mock implementation of SettingsStore
type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) UpsertSettings(ctx context.Context, rows []models.GatewaySetting) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockSettingsStore) ListSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) ([]models.GatewaySetting, error) {
	args := m.Called(ctx, tenantID, gatewayType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GatewaySetting), args.Error(1)
}

func (m *MockSettingsStore) ListConfiguredGateways(ctx context.Context, tenantID string) ([]models.GatewayType, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GatewayType), args.Error(1)
}

// MockSettingsLoader is a mock implementation of SettingsLoader
type MockSettingsLoader struct {
	mock.Mock
}

func (m *MockSettingsLoader) LoadSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) (models.Settings, error) {
	args := m.Called(ctx, tenantID, gatewayType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Settings), args.Error(1)
}

// MockLogStore is a mock implementation of repository.LogStore
type MockLogStore struct {
	mock.Mock
}

func (m *MockLogStore) CreateGatewayLog(ctx context.Context, entry *models.GatewayLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockNotificationStore is a mock implementation of NotificationStore
type MockNotificationStore struct {
	mock.Mock
}

func (m *MockNotificationStore) CreateNotification(ctx context.Context, n *models.GatewayNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockDeduper is a mock implementation of NotificationDeduper
type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) MarkApplied(ctx context.Context, tenantID, gateway, transactionID, status string) (bool, error) {
	args := m.Called(ctx, tenantID, gateway, transactionID, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) Forget(ctx context.Context, tenantID, gateway, transactionID, status string) error {
	args := m.Called(ctx, tenantID, gateway, transactionID, status)
	return args.Error(0)
}

// MockPublisher is a mock implementation of ResultPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishResult(ctx context.Context, tenantID string, gatewayType models.GatewayType, result *models.TransactionResult) error {
	args := m.Called(ctx, tenantID, gatewayType, result)
	return args.Error(0)
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testFactory(transport gateway.Transport) *gateway.Factory {
	return gateway.NewFactory(gateway.Options{Transport: transport, Log: quietLogger()})
}

func testEncryptor() *encryption.SettingsEncryptor {
	enc, err := encryption.NewWithKey(bytes.Repeat([]byte{3}, 32), "test")
	if err != nil {
		panic(err)
	}
	return enc
}
