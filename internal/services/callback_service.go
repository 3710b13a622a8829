package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gateway-service/internal/gateway"
	"gateway-service/internal/metrics"
	"gateway-service/internal/models"
	"gateway-service/internal/repository"
	"gorm.io/datatypes"
)

// NotificationStore records inbound processor callbacks
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.GatewayNotification) error
}

// NotificationDeduper remembers applied notifications
type NotificationDeduper interface {
	MarkApplied(ctx context.Context, tenantID, gateway, transactionID, status string) (bool, error)
	Forget(ctx context.Context, tenantID, gateway, transactionID, status string) error
}

// ResultPublisher publishes applied outcomes to the rest of the platform
type ResultPublisher interface {
	PublishResult(ctx context.Context, tenantID string, gatewayType models.GatewayType, result *models.TransactionResult) error
}

// CallbackService authenticates processor notifications and payer returns
type CallbackService struct {
	factory       *gateway.Factory
	settings      SettingsLoader
	logs          repository.LogStore
	notifications NotificationStore
	deduper       NotificationDeduper
	publisher     ResultPublisher
	metrics       *metrics.Recorder
	logger        *logrus.Entry
}

// CallbackServiceConfig holds the collaborators of the callback service.
// Logs, Deduper, Publisher and Metrics are optional.
type CallbackServiceConfig struct {
	Factory       *gateway.Factory
	Settings      SettingsLoader
	Logs          repository.LogStore
	Notifications NotificationStore
	Deduper       NotificationDeduper
	Publisher     ResultPublisher
	Metrics       *metrics.Recorder
	Logger        *logrus.Entry
}

// NotificationOutcome is the result of handling one processor notification
type NotificationOutcome struct {
	Result  *models.TransactionResult
	Outcome models.NotificationStatus
}

// NewCallbackService creates a new callback service
func NewCallbackService(cfg CallbackServiceConfig) *CallbackService {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CallbackService{
		factory:       cfg.Factory,
		settings:      cfg.Settings,
		logs:          cfg.Logs,
		notifications: cfg.Notifications,
		deduper:       cfg.Deduper,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		logger:        logger.WithField("component", "callback_service"),
	}
}

func (s *CallbackService) adapter(ctx context.Context, tenantID string, gatewayType models.GatewayType) (gateway.RedirectGateway, error) {
	var sink gateway.LogSink = gateway.NopSink{}
	if s.logs != nil {
		sink = repository.NewLogSink(s.logs, tenantID, s.logger)
	}

	gw, err := s.factory.CreateRedirect(gatewayType, gateway.WithSink(sink))
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.LoadSettings(ctx, tenantID, gatewayType)
	if err != nil {
		return nil, err
	}
	gw.SetMeta(settings)
	return gw, nil
}

// HandleNotification validates a server-to-server notification. A notification
// failing integrity checks is recorded as rejected and returned as
// ValidationErrors. A repeat of an applied notification is recorded as a
// duplicate and publishes nothing.
func (s *CallbackService) HandleNotification(ctx context.Context, tenantID string, gatewayType models.GatewayType, cb *gateway.Callback) (*NotificationOutcome, error) {
	start := time.Now()
	log := s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"gateway":   gatewayType,
	})

	gw, err := s.adapter(ctx, tenantID, gatewayType)
	if err != nil {
		return nil, err
	}

	result, err := gw.Validate(ctx, cb)
	s.metrics.Observe(gatewayType.Slug(), OpValidate, outcomeLabel(result, err), time.Since(start))

	var verrs gateway.ValidationErrors
	if errors.As(err, &verrs) {
		log.WithField("errors", verrs.Error()).Warn("Rejected gateway notification")
		s.record(ctx, tenantID, gatewayType, nil, models.NotificationRejected, verrs)
		s.metrics.Notification(gatewayType.Slug(), string(models.NotificationRejected))
		return nil, verrs
	}
	if err != nil {
		return nil, err
	}

	log = log.WithFields(logrus.Fields{
		"transaction_id": result.TransactionID,
		"status":         result.Status,
	})

	if s.deduper != nil {
		first, err := s.deduper.MarkApplied(ctx, tenantID, string(gatewayType), result.TransactionID, string(result.Status))
		if err != nil {
			log.WithError(err).Warn("Notification de-duplication unavailable")
			first = true
		}
		if !first {
			log.Info("Duplicate gateway notification")
			s.record(ctx, tenantID, gatewayType, result, models.NotificationDuplicate, nil)
			s.metrics.Notification(gatewayType.Slug(), string(models.NotificationDuplicate))
			return &NotificationOutcome{Result: result, Outcome: models.NotificationDuplicate}, nil
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, tenantID, gatewayType, result); err != nil {
			// Let the processor resend the notification
			if s.deduper != nil {
				if ferr := s.deduper.Forget(ctx, tenantID, string(gatewayType), result.TransactionID, string(result.Status)); ferr != nil {
					log.WithError(ferr).Warn("Failed to clear notification mark")
				}
			}
			return nil, fmt.Errorf("failed to publish gateway result: %w", err)
		}
	}

	s.record(ctx, tenantID, gatewayType, result, models.NotificationApplied, nil)
	s.metrics.Notification(gatewayType.Slug(), string(models.NotificationApplied))
	log.Info("Applied gateway notification")

	return &NotificationOutcome{Result: result, Outcome: models.NotificationApplied}, nil
}

// HandleReturn normalizes the payer's browser return. It is informational;
// only the notification is authoritative.
func (s *CallbackService) HandleReturn(ctx context.Context, tenantID string, gatewayType models.GatewayType, cb *gateway.Callback) (*models.TransactionResult, error) {
	start := time.Now()

	gw, err := s.adapter(ctx, tenantID, gatewayType)
	if err != nil {
		return nil, err
	}

	result, err := gw.Success(ctx, cb)
	s.metrics.Observe(gatewayType.Slug(), OpSuccess, outcomeLabel(result, err), time.Since(start))
	return result, err
}

func (s *CallbackService) record(ctx context.Context, tenantID string, gatewayType models.GatewayType, result *models.TransactionResult, outcome models.NotificationStatus, verrs gateway.ValidationErrors) {
	if s.notifications == nil {
		return
	}

	n := &models.GatewayNotification{
		TenantID:    tenantID,
		GatewayType: gatewayType,
		Outcome:     outcome,
	}
	if result != nil {
		n.TransactionID = result.TransactionID
		n.ClientID = result.ClientID
		n.Status = result.Status
		n.Amount = result.Amount.StringFixed(2)
		n.Currency = result.Currency
		if len(result.Invoices) > 0 {
			if data, err := json.Marshal(result.Invoices); err == nil {
				n.Invoices = datatypes.JSON(data)
			}
		}
	}
	if len(verrs) > 0 {
		if data, err := json.Marshal(verrs); err == nil {
			n.Errors = datatypes.JSON(data)
		}
	}

	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"gateway":   gatewayType,
			"outcome":   outcome,
		}).Warn("Failed to record gateway notification")
	}
}
