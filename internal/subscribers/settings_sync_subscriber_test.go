package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	gosharedevents "github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
)

// MockSettingsWriter is a mock implementation of SettingsWriter
type MockSettingsWriter struct {
	mock.Mock
}

func (m *MockSettingsWriter) SaveSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType, input models.Settings) (models.Settings, error) {
	args := m.Called(ctx, tenantID, gatewayType, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Settings), args.Error(1)
}

// plainDecrypt treats "enc:" prefixed values as ciphertext
func plainDecrypt(s string) (string, error) {
	if len(s) < 4 || s[:4] != "enc:" {
		return "", errors.New("not encrypted")
	}
	return s[4:], nil
}

func newTestSubscriber(w SettingsWriter) *SettingsSyncSubscriber {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return newSettingsSyncSubscriber(nil, w, plainDecrypt, logger)
}

func message(t *testing.T, event gosharedevents.PaymentConfigEvent) *gosharedevents.Message {
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return &gosharedevents.Message{Data: data}
}

func TestSettingsSync_SavesDecryptedSettings(t *testing.T) {
	w := new(MockSettingsWriter)
	s := newTestSubscriber(w)

	w.On("SaveSettings", mock.Anything, "t1", models.GatewaySkrill, models.Settings{"email": "merchant@example.com", "secret_word": "sw"}).
		Return(models.Settings{}, nil)

	var event gosharedevents.PaymentConfigEvent
	event.EventType = gosharedevents.PaymentConfigUpdated
	event.TenantID = "t1"
	event.GatewayType = "skrill"
	event.CredentialsEncrypted = `enc:{"email":"merchant@example.com","secret_word":"sw"}`

	require.NoError(t, s.handleMessage(context.Background(), message(t, event)))
	w.AssertExpectations(t)
}

func TestSettingsSync_InvalidSettingsAreNotRedelivered(t *testing.T) {
	w := new(MockSettingsWriter)
	s := newTestSubscriber(w)

	w.On("SaveSettings", mock.Anything, "t1", models.GatewaySkrill, mock.Anything).
		Return(nil, gateway.ValidationErrors{"email": {"invalid"}}).Once()
	w.On("SaveSettings", mock.Anything, "t1", models.GatewaySkrill, mock.Anything).
		Return(nil, errors.New("db down")).Once()

	var event gosharedevents.PaymentConfigEvent
	event.EventType = gosharedevents.PaymentConfigEnabled
	event.TenantID = "t1"
	event.GatewayType = "SKRILL"
	event.CredentialsEncrypted = `enc:{"email":"bad"}`

	assert.NoError(t, s.handleMessage(context.Background(), message(t, event)))
	assert.Error(t, s.handleMessage(context.Background(), message(t, event)))
}

func TestSettingsSync_IgnoresUnsupportedAndUndecryptable(t *testing.T) {
	w := new(MockSettingsWriter)
	s := newTestSubscriber(w)

	var event gosharedevents.PaymentConfigEvent
	event.EventType = gosharedevents.PaymentConfigUpdated
	event.TenantID = "t1"
	event.GatewayType = "STRIPE"
	event.CredentialsEncrypted = `enc:{}`
	assert.NoError(t, s.handleMessage(context.Background(), message(t, event)))

	event.GatewayType = "PAYZA"
	event.CredentialsEncrypted = "garbage"
	assert.NoError(t, s.handleMessage(context.Background(), message(t, event)))

	assert.NoError(t, s.handleMessage(context.Background(), &gosharedevents.Message{Data: []byte("{")}))
	w.AssertNotCalled(t, "SaveSettings", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSettingsSync_DisabledKeepsSettings(t *testing.T) {
	w := new(MockSettingsWriter)
	s := newTestSubscriber(w)

	var event gosharedevents.PaymentConfigEvent
	event.EventType = gosharedevents.PaymentConfigDisabled
	event.TenantID = "t1"
	event.GatewayType = "BITPAY"
	event.CredentialsEncrypted = `enc:{"api_key":"k"}`

	assert.NoError(t, s.handleMessage(context.Background(), message(t, event)))
	w.AssertNotCalled(t, "SaveSettings", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
