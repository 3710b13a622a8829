package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gateway-service/internal/models"
)

// ============================================================================
// PayPal Payflow Pro (name-value pairs)
// ============================================================================

const (
	payflowLiveURL = "https://payflowpro.paypal.com"
	payflowTestURL = "https://pilot-payflowpro.paypal.com"
)

// Payflow transaction types
const (
	payflowSale           = "S"
	payflowAuthorization  = "A"
	payflowDelayedCapture = "D"
	payflowVoid           = "V"
	payflowCredit         = "C"
)

// PayflowGateway implements CardGateway for Payflow Pro
type PayflowGateway struct {
	base
}

// NewPayflowGateway creates a new Payflow Pro gateway instance
func NewPayflowGateway(opts Options) *PayflowGateway {
	return &PayflowGateway{
		base: newBase(models.GatewayPayflowPro, opts,
			[]string{"partner", "vendor", "user", "password"},
			"PWD", "USER", "ACCT", "CVV2", "EXPDATE",
		),
	}
}

func (g *PayflowGateway) Name() string      { return "Payflow Pro" }
func (g *PayflowGateway) Version() string   { return "1.2.0" }
func (g *PayflowGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *PayflowGateway) Currencies() []string {
	return []string{"USD", "EUR", "GBP", "CAD", "JPY", "AUD"}
}

var payflowRules = RuleSet{
	Required("partner", "Please enter your Payflow partner."),
	MaxLength("partner", 12, "The partner may be at most 12 characters."),
	Required("vendor", "Please enter your Payflow merchant login."),
	MaxLength("vendor", 64, "The merchant login may be at most 64 characters."),
	MaxLength("user", 64, "The user may be at most 64 characters."),
	Required("password", "Please enter your Payflow password."),
	MaxLength("password", 32, "The password may be at most 32 characters."),
	OneOf("test_mode", []string{"true", "false"}, "Test mode must be either true or false."),
}

// EditSettings validates Payflow settings
func (g *PayflowGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "test_mode")
	return settings, payflowRules.Validate(settings)
}

// ProcessCC runs a sale
func (g *PayflowGateway) ProcessCC(ctx context.Context, charge *models.CardCharge) (*models.TransactionResult, error) {
	return g.charge(ctx, payflowSale, charge)
}

// AuthorizeCC authorizes a card without capturing it
func (g *PayflowGateway) AuthorizeCC(ctx context.Context, charge *models.CardCharge) (*models.TransactionResult, error) {
	return g.charge(ctx, payflowAuthorization, charge)
}

// CaptureCC captures an earlier authorization
func (g *PayflowGateway) CaptureCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	fields := g.credentials(payflowDelayedCapture)
	fields.Add("ORIGID", ref.TransactionID)
	if ref.Amount.IsPositive() {
		fields.Add("AMT", formatAmount(ref.Amount))
	}
	return g.submit(ctx, "capture", fields), nil
}

// VoidCC voids an earlier transaction
func (g *PayflowGateway) VoidCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	fields := g.credentials(payflowVoid)
	fields.Add("ORIGID", ref.TransactionID)

	result := g.submit(ctx, "void", fields)
	result.Relabel(models.StatusVoid)
	return result, nil
}

// RefundCC credits an earlier transaction
func (g *PayflowGateway) RefundCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	fields := g.credentials(payflowCredit)
	fields.Add("ORIGID", ref.TransactionID)
	if ref.Amount.IsPositive() {
		fields.Add("AMT", formatAmount(ref.Amount))
	}
	if ref.Notes != "" {
		fields.Add("COMMENT1", ref.Notes)
	}

	result := g.submit(ctx, "refund", fields)
	result.Relabel(models.StatusRefunded)
	return result, nil
}

func (g *PayflowGateway) charge(ctx context.Context, trxType string, charge *models.CardCharge) (*models.TransactionResult, error) {
	expiry, err := payflowExpiry(charge.Card.Expiry)
	if err != nil {
		return nil, err
	}

	currency := g.currency
	if charge.Currency != "" {
		currency = strings.ToUpper(charge.Currency)
	}

	fields := g.credentials(trxType)
	fields.Add("ACCT", charge.Card.Number)
	fields.Add("EXPDATE", expiry)
	fields.Add("AMT", formatAmount(charge.Amount))
	fields.Add("CURRENCY", currency)
	if charge.Card.SecurityCode != "" {
		fields.Add("CVV2", charge.Card.SecurityCode)
	}
	fields.Add("FIRSTNAME", charge.Card.FirstName)
	fields.Add("LASTNAME", charge.Card.LastName)
	fields.Add("STREET", charge.Card.Address.Line1)
	fields.Add("CITY", charge.Card.Address.City)
	fields.Add("STATE", charge.Card.Address.State)
	fields.Add("ZIP", charge.Card.Address.Zip)
	fields.Add("BILLTOCOUNTRY", charge.Card.Address.Country)
	if charge.Card.Email != "" {
		fields.Add("EMAIL", charge.Card.Email)
	}
	if len(charge.Invoices) > 0 {
		fields.Add("COMMENT1", PipeCodec.Encode(charge.Invoices))
	}

	op := "process"
	if trxType == payflowAuthorization {
		op = "authorize"
	}
	return g.submit(ctx, op, fields), nil
}

// credentials starts a request with the account fields
func (g *PayflowGateway) credentials(trxType string) Fields {
	user := g.meta.Get("user")
	if user == "" {
		user = g.meta.Get("vendor")
	}
	var fields Fields
	fields.Add("PARTNER", g.meta.Get("partner"))
	fields.Add("VENDOR", g.meta.Get("vendor"))
	fields.Add("USER", user)
	fields.Add("PWD", g.meta.Get("password"))
	fields.Add("TRXTYPE", trxType)
	fields.Add("TENDER", "C")
	fields.Add("VERBOSITY", "MEDIUM")
	return fields
}

func (g *PayflowGateway) endpoint() string {
	if g.meta.Bool("test_mode") {
		return payflowTestURL
	}
	return payflowLiveURL
}

func (g *PayflowGateway) submit(ctx context.Context, op string, fields Fields) *models.TransactionResult {
	endpoint := g.endpoint()
	request := fields.Map()
	g.logRequest(ctx, endpoint, request)

	raw, err := g.transport.Post(ctx, endpoint, fields.EncodeLengthTagged(), map[string]string{
		"Content-Type":         "text/namevalue",
		"X-VPS-REQUEST-ID":     uuid.New().String(),
		"X-VPS-CLIENT-TIMEOUT": "45",
	})
	if err != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		return g.transportFailure(op, err)
	}

	response := ParseNVP(raw)
	status := payflowStatus(response["RESULT"])
	g.logResponse(ctx, endpoint, raw, status == models.StatusApproved, request, response)

	return &models.TransactionResult{
		Status:        status,
		ReferenceID:   response["AUTHCODE"],
		TransactionID: response["PNREF"],
		Message:       response["RESPMSG"],
	}
}

// payflowStatus maps the RESULT code. 0 is approval, 126 and 127 are
// fraud-filter reviews, positive codes are declines and negative codes are
// communication errors.
func payflowStatus(result string) models.TransactionStatus {
	code, err := strconv.Atoi(strings.TrimSpace(result))
	if err != nil {
		return models.StatusError
	}
	switch {
	case code == 0:
		return models.StatusApproved
	case code == 126 || code == 127:
		return models.StatusPending
	case code > 0:
		return models.StatusDeclined
	default:
		return models.StatusError
	}
}

// payflowExpiry converts a yyyymm expiry to mmyy
func payflowExpiry(expiry string) (string, error) {
	if len(expiry) != 6 {
		return "", models.ErrInvalidCardExpiry
	}
	if _, err := strconv.Atoi(expiry); err != nil {
		return "", models.ErrInvalidCardExpiry
	}
	return expiry[4:6] + expiry[2:4], nil
}
