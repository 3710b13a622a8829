package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gateway-service/internal/gateway"
	"gateway-service/internal/metrics"
	"gateway-service/internal/models"
	"gateway-service/internal/repository"
)

// Operation names used in logs and metrics
const (
	OpProcessCC    = "process_cc"
	OpAuthorizeCC  = "authorize_cc"
	OpCapture      = "capture"
	OpVoid         = "void"
	OpRefund       = "refund"
	OpBuildProcess = "build_process"
	OpValidate     = "validate"
	OpSuccess      = "success"
)

// SettingsLoader returns the decrypted settings of a tenant's gateway
type SettingsLoader interface {
	LoadSettings(ctx context.Context, tenantID string, gatewayType models.GatewayType) (models.Settings, error)
}

// PaymentService runs billing-core payment operations against a tenant's gateway
type PaymentService struct {
	factory         *gateway.Factory
	settings        SettingsLoader
	logs            repository.LogStore
	metrics         *metrics.Recorder
	callbackBaseURL string
	logger          *logrus.Entry
}

// PaymentServiceConfig holds the collaborators of the payment service
type PaymentServiceConfig struct {
	Factory  *gateway.Factory
	Settings SettingsLoader
	// Logs stores masked request and response records. Optional.
	Logs    repository.LogStore
	Metrics *metrics.Recorder
	// CallbackBaseURL is the public base of the /callback and /return routes
	CallbackBaseURL string
	Logger          *logrus.Entry
}

// NewPaymentService creates a new payment service
func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PaymentService{
		factory:         cfg.Factory,
		settings:        cfg.Settings,
		logs:            cfg.Logs,
		metrics:         cfg.Metrics,
		callbackBaseURL: strings.TrimRight(cfg.CallbackBaseURL, "/"),
		logger:          logger.WithField("component", "payment_service"),
	}
}

// sinkFor binds gateway log records to a tenant
func (s *PaymentService) sinkFor(tenantID string) gateway.LogSink {
	if s.logs == nil {
		return gateway.NopSink{}
	}
	return repository.NewLogSink(s.logs, tenantID, s.logger)
}

// prepare creates the adapter, applies the currency gate and binds the
// tenant's settings. The currency gate runs before anything else so an
// unsupported currency never reaches the processor.
func (s *PaymentService) prepare(ctx context.Context, tenantID string, gatewayType models.GatewayType, currency string) (gateway.Gateway, error) {
	gw, err := s.factory.Create(gatewayType, gateway.WithSink(s.sinkFor(tenantID)))
	if err != nil {
		return nil, err
	}

	if currency != "" {
		currency = strings.ToUpper(strings.TrimSpace(currency))
		if !gateway.SupportsCurrency(gw, currency) {
			return nil, fmt.Errorf("%w: %s does not accept %s", gateway.ErrCurrencyNotSupported, gw.Name(), currency)
		}
		gw.SetCurrency(currency)
	}

	settings, err := s.settings.LoadSettings(ctx, tenantID, gatewayType)
	if err != nil {
		return nil, err
	}
	gw.SetMeta(settings)
	return gw, nil
}

func (s *PaymentService) prepareCard(ctx context.Context, tenantID string, gatewayType models.GatewayType, currency string) (gateway.CardGateway, error) {
	if gateway.GatewayKind(gatewayType) != gateway.KindCard {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotCardGateway, gatewayType)
	}
	gw, err := s.prepare(ctx, tenantID, gatewayType, currency)
	if err != nil {
		return nil, err
	}
	card, ok := gw.(gateway.CardGateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotCardGateway, gatewayType)
	}
	return card, nil
}

func (s *PaymentService) prepareRedirect(ctx context.Context, tenantID string, gatewayType models.GatewayType, currency string) (gateway.RedirectGateway, error) {
	if gateway.GatewayKind(gatewayType) != gateway.KindRedirect {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotRedirectGateway, gatewayType)
	}
	gw, err := s.prepare(ctx, tenantID, gatewayType, currency)
	if err != nil {
		return nil, err
	}
	redirect, ok := gw.(gateway.RedirectGateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotRedirectGateway, gatewayType)
	}
	return redirect, nil
}

// ChargeCard charges a card in one step
func (s *PaymentService) ChargeCard(ctx context.Context, tenantID string, gatewayType models.GatewayType, charge *models.CardCharge) (*models.TransactionResult, error) {
	return s.cardCharge(ctx, tenantID, gatewayType, OpProcessCC, charge)
}

// AuthorizeCard authorizes a card for later capture
func (s *PaymentService) AuthorizeCard(ctx context.Context, tenantID string, gatewayType models.GatewayType, charge *models.CardCharge) (*models.TransactionResult, error) {
	return s.cardCharge(ctx, tenantID, gatewayType, OpAuthorizeCC, charge)
}

func (s *PaymentService) cardCharge(ctx context.Context, tenantID string, gatewayType models.GatewayType, op string, charge *models.CardCharge) (*models.TransactionResult, error) {
	if err := charge.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	gw, err := s.prepareCard(ctx, tenantID, gatewayType, charge.Currency)
	if err != nil {
		s.observe(gatewayType, op, nil, err, start)
		return nil, err
	}

	var result *models.TransactionResult
	if op == OpAuthorizeCC {
		result, err = gw.AuthorizeCC(ctx, charge)
	} else {
		result, err = gw.ProcessCC(ctx, charge)
	}

	s.observe(gatewayType, op, result, err, start)
	s.logOutcome(tenantID, gatewayType, op, result, err, logrus.Fields{"card_last4": charge.Card.LastFour()})
	return result, err
}

// Capture captures an earlier authorization
func (s *PaymentService) Capture(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error) {
	return s.action(ctx, tenantID, gatewayType, OpCapture, req)
}

// Void cancels an earlier transaction before settlement
func (s *PaymentService) Void(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error) {
	return s.action(ctx, tenantID, gatewayType, OpVoid, req)
}

// Refund returns all or part of an earlier payment
func (s *PaymentService) Refund(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.TransactionActionRequest) (*models.TransactionResult, error) {
	return s.action(ctx, tenantID, gatewayType, OpRefund, req)
}

func (s *PaymentService) action(ctx context.Context, tenantID string, gatewayType models.GatewayType, op string, req *models.TransactionActionRequest) (*models.TransactionResult, error) {
	ref, err := transactionRef(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	gw, err := s.prepare(ctx, tenantID, gatewayType, req.Currency)
	if err != nil {
		s.observe(gatewayType, op, nil, err, start)
		return nil, err
	}

	var result *models.TransactionResult
	switch g := gw.(type) {
	case gateway.CardGateway:
		switch op {
		case OpCapture:
			result, err = g.CaptureCC(ctx, ref)
		case OpVoid:
			result, err = g.VoidCC(ctx, ref)
		default:
			result, err = g.RefundCC(ctx, ref)
		}
	case gateway.RedirectGateway:
		switch op {
		case OpCapture:
			result, err = g.Capture(ctx, ref)
		case OpVoid:
			result, err = g.Void(ctx, ref)
		default:
			result, err = g.Refund(ctx, ref)
		}
	default:
		err = fmt.Errorf("%w: %s", gateway.ErrUnsupported, gatewayType)
	}

	s.observe(gatewayType, op, result, err, start)
	s.logOutcome(tenantID, gatewayType, op, result, err, nil)
	return result, err
}

func transactionRef(req *models.TransactionActionRequest) (*gateway.TransactionRef, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, models.ErrMissingTransactionID
	}

	amount := decimal.Zero
	if req.Amount.Valid {
		amount = req.Amount.Decimal
		if err := models.ValidateAmount(amount, req.Invoices); err != nil {
			return nil, err
		}
	}

	return &gateway.TransactionRef{
		ReferenceID:   req.ReferenceID,
		TransactionID: req.TransactionID,
		Amount:        amount,
		Invoices:      req.Invoices,
		Notes:         req.Notes,
	}, nil
}

// BuildProcess returns the form or link that sends the payer to the processor.
// The processor notifies /callback/{gateway} and returns the payer to
// /return/{gateway} unless the caller supplies its own return URL.
func (s *PaymentService) BuildProcess(ctx context.Context, tenantID string, gatewayType models.GatewayType, req *models.BuildProcessRequest) (*models.ProcessFormResponse, error) {
	if err := models.ValidateAmount(req.Amount, req.Invoices); err != nil {
		return nil, err
	}

	start := time.Now()
	gw, err := s.prepareRedirect(ctx, tenantID, gatewayType, req.Currency)
	if err != nil {
		s.observe(gatewayType, OpBuildProcess, nil, err, start)
		return nil, err
	}

	opts := gateway.ProcessOptions{
		Description: req.Description,
		NotifyURL:   s.CallbackURL("callback", tenantID, gatewayType),
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	}
	if opts.ReturnURL == "" {
		opts.ReturnURL = s.CallbackURL("return", tenantID, gatewayType)
	}

	form, err := gw.BuildProcess(ctx, &req.Contact, req.Amount, req.Invoices, opts)
	if err != nil {
		s.observe(gatewayType, OpBuildProcess, nil, err, start)
		s.logOutcome(tenantID, gatewayType, OpBuildProcess, nil, err, nil)
		return nil, err
	}

	resp, err := form.Response()
	s.observe(gatewayType, OpBuildProcess, &models.TransactionResult{Status: models.StatusPending}, err, start)
	return resp, err
}

// CallbackURL builds a tenant-scoped route under the public base URL
func (s *PaymentService) CallbackURL(route, tenantID string, gatewayType models.GatewayType) string {
	if s.callbackBaseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	return fmt.Sprintf("%s/%s/%s?%s", s.callbackBaseURL, route, gatewayType.Slug(), q.Encode())
}

func (s *PaymentService) observe(gatewayType models.GatewayType, op string, result *models.TransactionResult, err error, start time.Time) {
	s.metrics.Observe(gatewayType.Slug(), op, outcomeLabel(result, err), time.Since(start))
}

// outcomeLabel is the canonical status, or an error class for failed calls
func outcomeLabel(result *models.TransactionResult, err error) string {
	var verrs gateway.ValidationErrors
	switch {
	case err == nil && result != nil:
		return string(result.Status)
	case errors.Is(err, gateway.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, gateway.ErrCurrencyNotSupported):
		return "currency_rejected"
	case errors.As(err, &verrs):
		return "invalid"
	default:
		return "failed"
	}
}

func (s *PaymentService) logOutcome(tenantID string, gatewayType models.GatewayType, op string, result *models.TransactionResult, err error, extra logrus.Fields) {
	fields := logrus.Fields{
		"tenant_id": tenantID,
		"gateway":   gatewayType,
		"operation": op,
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupported) {
			s.logger.WithFields(fields).Debug("Operation not supported by gateway")
			return
		}
		s.logger.WithFields(fields).WithError(err).Warn("Gateway operation failed")
		return
	}

	fields["status"] = result.Status
	fields["transaction_id"] = result.TransactionID
	switch result.Status {
	case models.StatusError:
		s.logger.WithFields(fields).WithField("message", result.Message).Warn("Gateway returned an error")
	default:
		s.logger.WithFields(fields).Info("Gateway operation completed")
	}
}
