package gateway

import (
	"fmt"
	"time"

	"gateway-service/internal/models"
)

// Kind tells how a gateway takes payments
type Kind string

const (
	KindCard     Kind = "card"
	KindRedirect Kind = "redirect"
)

// Option overrides a factory default for one adapter
type Option func(*Options)

// WithSink sets the log sink, usually one bound to a tenant
func WithSink(sink LogSink) Option {
	return func(o *Options) { o.Sink = sink }
}

// WithTransport sets the transport
func WithTransport(t Transport) Option {
	return func(o *Options) { o.Transport = t }
}

// WithClock sets the clock used for order ids
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}

// Factory creates gateway instances. Adapters are cheap and carry per-merchant
// settings, so a new one is created for every operation.
type Factory struct {
	opts Options
}

// NewFactory creates a new gateway factory
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts.withDefaults()}
}

// Create creates a gateway instance of the given type
func (f *Factory) Create(gatewayType models.GatewayType, overrides ...Option) (Gateway, error) {
	opts := f.opts
	for _, apply := range overrides {
		apply(&opts)
	}

	switch gatewayType {
	case models.GatewayEway:
		return NewEwayGateway(opts), nil
	case models.GatewayPayflowPro:
		return NewPayflowGateway(opts), nil
	case models.GatewayTwoCheckout:
		return NewTwoCheckoutGateway(opts), nil
	case models.GatewayBitPay:
		return NewBitPayGateway(opts), nil
	case models.GatewayPagSeguro:
		return NewPagSeguroGateway(opts), nil
	case models.GatewayPayPalStandard:
		return NewPayPalStandardGateway(opts), nil
	case models.GatewayPayza:
		return NewPayzaGateway(opts), nil
	case models.GatewaySkrill:
		return NewSkrillGateway(opts), nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownGatewayType, gatewayType)
}

// CreateCard creates a gateway that takes card data directly
func (f *Factory) CreateCard(gatewayType models.GatewayType, overrides ...Option) (CardGateway, error) {
	gw, err := f.Create(gatewayType, overrides...)
	if err != nil {
		return nil, err
	}
	card, ok := gw.(CardGateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCardGateway, gatewayType)
	}
	return card, nil
}

// CreateRedirect creates a gateway that redirects the payer
func (f *Factory) CreateRedirect(gatewayType models.GatewayType, overrides ...Option) (RedirectGateway, error) {
	gw, err := f.Create(gatewayType, overrides...)
	if err != nil {
		return nil, err
	}
	redirect, ok := gw.(RedirectGateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRedirectGateway, gatewayType)
	}
	return redirect, nil
}

// SupportedGatewayTypes returns all supported gateway types
func SupportedGatewayTypes() []models.GatewayType {
	return []models.GatewayType{
		models.GatewayEway,
		models.GatewayPayflowPro,
		models.GatewayTwoCheckout,
		models.GatewayBitPay,
		models.GatewayPagSeguro,
		models.GatewayPayPalStandard,
		models.GatewayPayza,
		models.GatewaySkrill,
	}
}

// GatewayDisplayName returns the display name for a gateway type
func GatewayDisplayName(gatewayType models.GatewayType) string {
	names := map[models.GatewayType]string{
		models.GatewayEway:           "eWay",
		models.GatewayPayflowPro:     "Payflow Pro",
		models.GatewayTwoCheckout:    "2Checkout",
		models.GatewayBitPay:         "BitPay",
		models.GatewayPagSeguro:      "PagSeguro",
		models.GatewayPayPalStandard: "PayPal Payments Standard",
		models.GatewayPayza:          "Payza",
		models.GatewaySkrill:         "Skrill",
	}

	if name, ok := names[gatewayType]; ok {
		return name
	}
	return string(gatewayType)
}

// GatewayKind returns whether a gateway takes cards or redirects the payer
func GatewayKind(gatewayType models.GatewayType) Kind {
	switch gatewayType {
	case models.GatewayEway, models.GatewayPayflowPro:
		return KindCard
	}
	return KindRedirect
}

// SupportsCurrency reports whether the gateway accepts a currency
func SupportsCurrency(gw Gateway, currency string) bool {
	for _, c := range gw.Currencies() {
		if c == currency {
			return true
		}
	}
	return false
}
