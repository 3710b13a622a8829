package events

import (
	"context"
	"strconv"
	"strings"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"
	"gateway-service/internal/models"
)

// Publisher wraps the shared events publisher for gateway outcomes
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new gateway events publisher
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "gateway-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := publisher.EnsureStream(ctx, events.StreamPayments, []string{"payment.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure PAYMENT_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishResult publishes the event matching a normalized gateway outcome.
// Pending and void outcomes publish nothing.
func (p *Publisher) PublishResult(ctx context.Context, tenantID string, gatewayType models.GatewayType, result *models.TransactionResult) error {
	event := BuildEvent(tenantID, gatewayType, result)
	if event == nil {
		return nil
	}

	p.logger.WithFields(logrus.Fields{
		"tenant_id":      tenantID,
		"gateway":        gatewayType,
		"transaction_id": result.TransactionID,
		"status":         event.Status,
	}).Debug("Publishing payment event")

	return p.publisher.PublishPayment(ctx, event)
}

// BuildEvent maps a result onto a payment event, or nil when nothing is published
func BuildEvent(tenantID string, gatewayType models.GatewayType, result *models.TransactionResult) *events.PaymentEvent {
	if result == nil {
		return nil
	}

	amount, _ := result.Amount.Float64()

	var event *events.PaymentEvent
	switch result.Status {
	case models.StatusApproved:
		event = events.NewPaymentEvent(events.PaymentSucceeded, tenantID)
		event.Amount = amount
		event.Status = "succeeded"
	case models.StatusDeclined, models.StatusError:
		event = events.NewPaymentEvent(events.PaymentFailed, tenantID)
		event.Amount = amount
		event.ErrorCode = string(result.Status)
		event.ErrorMessage = result.Message
		event.Status = "failed"
	case models.StatusRefunded, models.StatusReturned:
		event = events.NewPaymentEvent(events.PaymentRefunded, tenantID)
		event.RefundID = result.TransactionID
		event.RefundAmount = amount
		event.RefundReason = string(result.Status)
		event.Status = "refunded"
	default:
		return nil
	}

	event.PaymentID = result.TransactionID
	if result.ParentTransactionID != "" {
		event.PaymentID = result.ParentTransactionID
	}
	event.OrderID = result.ClientID
	event.OrderNumber = invoiceNumbers(result.Invoices)
	event.Currency = result.Currency
	event.Provider = gatewayType.Slug()
	event.Method = "gateway"
	return event
}

func invoiceNumbers(invoices []models.InvoiceAllocation) string {
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, strconv.FormatInt(inv.ID, 10))
	}
	return strings.Join(ids, ",")
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	p.publisher.Close()
}
