package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
)

func newTestSettingsService(store SettingsStore) *SettingsService {
	return NewSettingsService(store, testFactory(new(MockTransport)), testEncryptor(), quietLogger())
}

func rowsByKey(rows []models.GatewaySetting) map[string]models.GatewaySetting {
	out := make(map[string]models.GatewaySetting, len(rows))
	for _, r := range rows {
		out[r.Key] = r
	}
	return out
}

func TestSettingsService_SaveSettings_EncryptsSecrets(t *testing.T) {
	store := new(MockSettingsStore)
	svc := newTestSettingsService(store)

	var saved []models.GatewaySetting
	store.On("UpsertSettings", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).([]models.GatewaySetting) }).
		Return(nil)

	out, err := svc.SaveSettings(context.Background(), "t1", models.GatewaySkrill, models.Settings{
		"email":       "merchant@example.com",
		"secret_word": "mysecret",
		"language":    "DE",
	})
	require.NoError(t, err)

	assert.Equal(t, MaskedValue, out["secret_word"])
	assert.Equal(t, MaskedValue, out["email"])
	assert.Equal(t, "DE", out["language"])
	assert.Equal(t, "false", out["legacy_checkout"])

	rows := rowsByKey(saved)
	require.Len(t, rows, 4)

	secret := rows["secret_word"]
	assert.True(t, secret.Encrypted)
	assert.NotEqual(t, "mysecret", secret.Value)
	plain, err := testEncryptor().Decrypt(secret.Value)
	require.NoError(t, err)
	assert.Equal(t, "mysecret", plain)

	assert.False(t, rows["language"].Encrypted)
	assert.Equal(t, "DE", rows["language"].Value)
	assert.Equal(t, "t1", rows["language"].TenantID)
	assert.Equal(t, models.GatewaySkrill, rows["language"].GatewayType)
}

func TestSettingsService_SaveSettings_ValidationFailureStoresNothing(t *testing.T) {
	store := new(MockSettingsStore)
	svc := newTestSettingsService(store)

	_, err := svc.SaveSettings(context.Background(), "t1", models.GatewaySkrill, models.Settings{
		"email":       "not-an-email",
		"secret_word": "much-too-long-secret",
	})

	var verrs gateway.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("email"))
	assert.True(t, verrs.Has("secret_word"))
	store.AssertNotCalled(t, "UpsertSettings", mock.Anything, mock.Anything)
}

func TestSettingsService_SaveSettings_KeepsMaskedValues(t *testing.T) {
	store := new(MockSettingsStore)
	svc := newTestSettingsService(store)

	sealed, err := testEncryptor().Encrypt("stored1")
	require.NoError(t, err)
	store.On("ListSettings", mock.Anything, "t1", models.GatewaySkrill).Return([]models.GatewaySetting{
		{Key: "email", Value: "merchant@example.com"},
		{Key: "secret_word", Value: sealed, Encrypted: true},
	}, nil)

	var saved []models.GatewaySetting
	store.On("UpsertSettings", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).([]models.GatewaySetting) }).
		Return(nil)

	_, err = svc.SaveSettings(context.Background(), "t1", models.GatewaySkrill, models.Settings{
		"email":       "new@example.com",
		"secret_word": MaskedValue,
	})
	require.NoError(t, err)

	plain, err := testEncryptor().Decrypt(rowsByKey(saved)["secret_word"].Value)
	require.NoError(t, err)
	assert.Equal(t, "stored1", plain)
}

func TestSettingsService_LoadSettings(t *testing.T) {
	store := new(MockSettingsStore)
	svc := newTestSettingsService(store)

	sealed, err := testEncryptor().Encrypt("refund-pass")
	require.NoError(t, err)
	store.On("ListSettings", mock.Anything, "t1", models.GatewayEway).Return([]models.GatewaySetting{
		{Key: "customer_id", Value: "11223344"},
		{Key: "refund_password", Value: sealed, Encrypted: true},
		{Key: "test_mode", Value: "true"},
	}, nil)
	store.On("ListSettings", mock.Anything, "t2", models.GatewayEway).Return([]models.GatewaySetting{}, nil)

	settings, err := svc.LoadSettings(context.Background(), "t1", models.GatewayEway)
	require.NoError(t, err)
	assert.Equal(t, models.Settings{"customer_id": "11223344", "refund_password": "refund-pass", "test_mode": "true"}, settings)

	_, err = svc.LoadSettings(context.Background(), "t2", models.GatewayEway)
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
}

func TestSettingsService_GetSettings_MasksEncryptable(t *testing.T) {
	store := new(MockSettingsStore)
	svc := newTestSettingsService(store)

	store.On("ListSettings", mock.Anything, "t1", models.GatewayPayza).Return([]models.GatewaySetting{
		{Key: "email", Value: "merchant@example.com"},
		{Key: "test_mode", Value: "false"},
	}, nil)

	resp, err := svc.GetSettings(context.Background(), "t1", models.GatewayPayza)
	require.NoError(t, err)
	assert.Equal(t, models.GatewayPayza, resp.GatewayType)
	assert.Equal(t, "false", resp.Settings["test_mode"])
}

func TestSettingsService_StoreFailure(t *testing.T) {
	store := new(MockSettingsStore)
	svc := newTestSettingsService(store)
	store.On("UpsertSettings", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := svc.SaveSettings(context.Background(), "t1", models.GatewayBitPay, models.Settings{"api_key": "key"})
	assert.Error(t, err)
}

func TestSettingsService_ListGateways(t *testing.T) {
	svc := newTestSettingsService(new(MockSettingsStore))

	gateways, err := svc.ListGateways()
	require.NoError(t, err)
	require.Len(t, gateways, 8)

	byType := map[models.GatewayType]models.GatewayInfoResponse{}
	for _, g := range gateways {
		byType[g.Type] = g
	}
	assert.Equal(t, "card", byType[models.GatewayEway].Kind)
	assert.Equal(t, []string{"AUD"}, byType[models.GatewayEway].Currencies)
	assert.Equal(t, "redirect", byType[models.GatewaySkrill].Kind)
	assert.Equal(t, "paypal-standard", byType[models.GatewayPayPalStandard].Slug)
}

func TestSettingsService_UnknownGateway(t *testing.T) {
	svc := newTestSettingsService(new(MockSettingsStore))

	_, err := svc.SaveSettings(context.Background(), "t1", models.GatewayType("STRIPE"), models.Settings{})
	assert.ErrorIs(t, err, models.ErrUnknownGatewayType)
}
