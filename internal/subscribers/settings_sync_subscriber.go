package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosharedevents "github.com/Tesseract-Nexus/go-shared/events"
	"github.com/Tesseract-Nexus/go-shared/security"
	"github.com/sirupsen/logrus"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
)

// SettingsWriter stores gateway settings
type SettingsWriter interface {
	SaveSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType, input models.Settings) (models.Settings, error)
}

// SettingsSyncSubscriber applies payment config events published by the
// storefront admin to this service's gateway settings. Events for gateways
// this service has no adapter for are ignored. Settings are only ever
// overwritten, so disabling a method upstream leaves them in place.
type SettingsSyncSubscriber struct {
	subscriber *gosharedevents.Subscriber
	settings   SettingsWriter
	decrypt    func(string) (string, error)
	logger     *logrus.Entry
	cancel     context.CancelFunc
}

// NewSettingsSyncSubscriber creates a new payment config event subscriber
func NewSettingsSyncSubscriber(natsURL string, settings SettingsWriter, logger *logrus.Logger) (*SettingsSyncSubscriber, error) {
	config := gosharedevents.DefaultSubscriberConfig(natsURL, "gateway-service-settings-sync")
	config.Name = "gateway-service-settings-subscriber"
	config.DeliverPolicy = "new"
	config.MaxDeliver = 5
	config.AckWait = 30 * time.Second

	subscriber, err := gosharedevents.NewSubscriber(config, logger)
	if err != nil {
		return nil, err
	}

	return newSettingsSyncSubscriber(subscriber, settings, security.DecryptPII, logger), nil
}

func newSettingsSyncSubscriber(subscriber *gosharedevents.Subscriber, settings SettingsWriter, decrypt func(string) (string, error), logger *logrus.Logger) *SettingsSyncSubscriber {
	return &SettingsSyncSubscriber{
		subscriber: subscriber,
		settings:   settings,
		decrypt:    decrypt,
		logger:     logger.WithField("component", "settings-sync-subscriber"),
	}
}

// Start starts listening for payment config events
func (s *SettingsSyncSubscriber) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	subjects := []string{
		gosharedevents.PaymentConfigUpdated,
		gosharedevents.PaymentConfigEnabled,
	}

	// The stream is created by the publishing service
	if err := s.subscriber.Subscribe(ctx, gosharedevents.StreamPaymentConfigs, subjects, s.handleMessage); err != nil {
		return err
	}

	s.logger.WithField("subjects", subjects).Info("Settings sync subscriber started")
	return nil
}

// handleMessage applies one payment config event. A non-nil error makes the
// broker redeliver, so only storage failures are returned.
func (s *SettingsSyncSubscriber) handleMessage(ctx context.Context, msg *gosharedevents.Message) error {
	var event gosharedevents.PaymentConfigEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.WithError(err).Error("Failed to unmarshal payment config event")
		return nil
	}

	gt, err := models.ParseGatewayType(event.GatewayType)
	if err != nil {
		s.logger.WithField("gateway_type", event.GatewayType).Debug("Ignoring payment config for unsupported gateway")
		return nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"event_type":   event.EventType,
		"tenant_id":    event.TenantID,
		"gateway_type": gt,
	})

	switch event.EventType {
	case gosharedevents.PaymentConfigUpdated, gosharedevents.PaymentConfigEnabled:
		return s.sync(ctx, log, &event, gt)
	default:
		log.Debug("Ignoring payment config event")
		return nil
	}
}

// sync decrypts the event credentials, a JSON object of setting values, and
// saves them through the adapter's settings rules
func (s *SettingsSyncSubscriber) sync(ctx context.Context, log *logrus.Entry, event *gosharedevents.PaymentConfigEvent, gt models.GatewayType) error {
	if event.CredentialsEncrypted == "" {
		log.Debug("Payment config event carries no credentials")
		return nil
	}

	plain, err := s.decrypt(event.CredentialsEncrypted)
	if err != nil {
		log.WithError(err).Error("Failed to decrypt payment config credentials")
		return nil
	}

	var input models.Settings
	if err := json.Unmarshal([]byte(plain), &input); err != nil {
		log.WithError(err).Error("Payment config credentials are not a settings object")
		return nil
	}

	if _, err := s.settings.SaveSettings(ctx, event.TenantID, gt, input); err != nil {
		var verrs gateway.ValidationErrors
		if errors.As(err, &verrs) {
			// Redelivery cannot fix invalid settings
			log.WithField("fields", verrs).Warn("Rejected payment config settings")
			return nil
		}
		return err
	}

	log.Info("Synced gateway settings from payment config event")
	return nil
}

// Stop stops the subscriber
func (s *SettingsSyncSubscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.subscriber != nil {
		s.subscriber.Close()
	}
	s.logger.Info("Settings sync subscriber stopped")
}
