package gateway

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gateway-service/internal/models"
)

var (
	// ErrUnsupported is returned when a processor has no equivalent API for an operation
	ErrUnsupported = errors.New("operation not supported by gateway")
	// ErrCurrencyNotSupported is returned when a charge uses a currency the gateway does not accept
	ErrCurrencyNotSupported = errors.New("currency not supported by gateway")
	// ErrNotCardGateway is returned when a card operation is requested on a redirect gateway
	ErrNotCardGateway = errors.New("gateway does not accept card payments")
	// ErrNotRedirectGateway is returned when a redirect operation is requested on a card gateway
	ErrNotRedirectGateway = errors.New("gateway does not support payer redirects")
)

// Gateway is implemented by every processor adapter
type Gateway interface {
	// Type returns the gateway type
	Type() models.GatewayType

	// Name, Version and Authors describe the adapter
	Name() string
	Version() string
	Authors() []string

	// Currencies returns the ISO 4217 codes the processor accepts
	Currencies() []string

	// SetCurrency sets the currency used by subsequent calls
	SetCurrency(currency string)

	// EditSettings validates candidate settings. The settings are returned
	// unchanged except for unset flags, which default to "false".
	EditSettings(settings models.Settings) (models.Settings, ValidationErrors)

	// EncryptableFields lists setting keys the settings store encrypts at rest
	EncryptableFields() []string

	// SetMeta binds validated settings for subsequent calls
	SetMeta(settings models.Settings)
}

// CardGateway is a merchant gateway that takes card data directly
type CardGateway interface {
	Gateway

	ProcessCC(ctx context.Context, charge *models.CardCharge) (*models.TransactionResult, error)
	AuthorizeCC(ctx context.Context, charge *models.CardCharge) (*models.TransactionResult, error)
	CaptureCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error)
	VoidCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error)
	RefundCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error)
}

// RedirectGateway is a non-merchant gateway that sends the payer to the processor
// and learns the outcome from a later callback
type RedirectGateway interface {
	Gateway

	// BuildProcess returns the form or link that sends the payer to the processor
	BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error)

	// Validate authenticates a server-to-server notification. When the
	// notification fails integrity checks the result is nil and the error
	// is a ValidationErrors keyed by the failed check.
	Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error)

	// Success normalizes the payer's browser return
	Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error)

	Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error)
	Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error)
	Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error)
}

// TransactionRef identifies an earlier transaction for capture, void or refund
type TransactionRef struct {
	ReferenceID   string
	TransactionID string
	Amount        decimal.Decimal
	Invoices      []models.InvoiceAllocation
	Notes         string
}

// ProcessOptions carries the URLs and labels of a redirect payment
type ProcessOptions struct {
	Description string
	// NotifyURL receives the processor's server-to-server notification
	NotifyURL string
	// ReturnURL is where the payer lands after paying
	ReturnURL string
	CancelURL string
}

// Callback is an inbound request from a processor or a returning payer
type Callback struct {
	Get  url.Values
	Post url.Values
	// Body is the raw request body, for processors that verify it byte for byte
	Body string
}

// NewCallback builds a callback from query and form values
func NewCallback(get, post url.Values) *Callback {
	if get == nil {
		get = url.Values{}
	}
	if post == nil {
		post = url.Values{}
	}
	return &Callback{Get: get, Post: post}
}

// Value returns the post value for key, falling back to the query string
func (cb *Callback) Value(key string) string {
	if v := cb.Post.Get(key); v != "" {
		return v
	}
	return cb.Get.Get(key)
}

// Options holds the collaborators injected into every adapter
type Options struct {
	Transport Transport
	Sink      LogSink
	Log       *logrus.Entry
	Clock     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Transport == nil {
		o.Transport = NewHTTPTransport(DefaultTimeout, o.Log)
	}
	if o.Sink == nil {
		o.Sink = NopSink{}
	}
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// GatewayError represents an error from a payment gateway
type GatewayError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *GatewayError) Error() string {
	return e.Message
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code, message string, retryable bool) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}
}
