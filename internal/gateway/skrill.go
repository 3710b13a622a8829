package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// Skrill (redirect, md5sig status posts, two-step refund API)
// ============================================================================

const (
	skrillPaymentURL = "https://pay.skrill.com"
	skrillLegacyURL  = "https://www.moneybookers.com/app/payment.pl"
	skrillRefundURL  = "https://www.skrill.com/app/refund.pl"
)

var skrillLanguages = []string{
	"EN", "DE", "ES", "FR", "IT", "PL", "GR", "RO", "RU", "TR", "CN", "CZ", "NL", "DA", "SV", "FI",
}

// SkrillGateway implements RedirectGateway for Skrill
type SkrillGateway struct {
	base
}

// NewSkrillGateway creates a new Skrill gateway instance
func NewSkrillGateway(opts Options) *SkrillGateway {
	return &SkrillGateway{
		base: newBase(models.GatewaySkrill, opts,
			[]string{"email", "secret_word", "api_password"},
			"password",
		),
	}
}

func (g *SkrillGateway) Name() string      { return "Skrill" }
func (g *SkrillGateway) Version() string   { return "1.2.0" }
func (g *SkrillGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *SkrillGateway) Currencies() []string {
	return []string{
		"EUR", "TWD", "USD", "THB", "GBP", "CZK", "HKD", "HUF", "SGD", "SKK",
		"JPY", "EEK", "CAD", "BGN", "AUD", "PLN", "CHF", "ISK", "DKK", "INR",
		"SEK", "LVL", "NOK", "KRW", "ILS", "ZAR", "MYR", "RON", "NZD", "HRK",
		"TRY", "LTL",
	}
}

var skrillRules = RuleSet{
	Required("email", "Please enter the e-mail address of your Skrill account."),
	Email("email", "The Skrill account must be a valid e-mail address."),
	Required("secret_word", "Please enter your Skrill secret word."),
	MaxLength("secret_word", 10, "The secret word may be at most 10 characters."),
	OneOf("language", skrillLanguages, "Please choose a language Skrill supports."),
	OneOf("legacy_checkout", []string{"true", "false"}, "Legacy checkout must be either true or false."),
}

// EditSettings validates Skrill settings
func (g *SkrillGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "legacy_checkout")
	return settings, skrillRules.Validate(settings)
}

// BuildProcess returns the Skrill payment form
func (g *SkrillGateway) BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error) {
	if err := models.ValidateAmount(amount, invoices); err != nil {
		return nil, err
	}

	action := skrillPaymentURL
	if g.meta.Bool("legacy_checkout") {
		action = skrillLegacyURL
	}
	language := g.meta.Get("language")
	if language == "" {
		language = "EN"
	}
	clientQuery := map[string]string{"client_id": contact.ClientID}

	form := NewPostForm(action)
	form.Add("pay_to_email", g.meta.Get("email"))
	form.Add("transaction_id", g.orderID(contact.ClientID))
	form.AddIfSet("return_url", withQuery(opts.ReturnURL, clientQuery))
	form.AddIfSet("cancel_url", opts.CancelURL)
	form.AddIfSet("status_url", withQuery(opts.NotifyURL, clientQuery))
	form.Add("language", language)
	form.Add("merchant_fields", "client_id,invoices")
	form.Add("client_id", contact.ClientID)
	form.Add("invoices", Base64DashCodec.Encode(invoices))
	form.Add("amount", formatAmount(amount))
	form.Add("currency", g.currency)
	form.Add("detail1_description", "Description:")
	form.Add("detail1_text", opts.Description)
	form.AddIfSet("pay_from_email", contact.Email)
	form.AddIfSet("firstname", contact.FirstName)
	form.AddIfSet("lastname", contact.LastName)
	form.AddIfSet("address", contact.Address.Line1)
	form.AddIfSet("address2", contact.Address.Line2)
	form.AddIfSet("phone_number", contact.Phone)
	form.AddIfSet("postal_code", contact.Address.Zip)
	form.AddIfSet("city", contact.Address.City)
	form.AddIfSet("state", contact.Address.State)
	form.AddIfSet("country", contact.Address.Country)

	g.logRequest(ctx, action, form.Fields.Map())
	return form, nil
}

// Validate authenticates a status_url post by its md5sig
func (g *SkrillGateway) Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	expected := upperMD5(cb.Value("merchant_id") +
		cb.Value("transaction_id") +
		upperMD5(g.meta.Get("secret_word")) +
		cb.Value("mb_amount") +
		cb.Value("mb_currency") +
		cb.Value("status"))
	if !signaturesMatch(expected, cb.Value("md5sig")) {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeySignature, "The Skrill status signature does not match.")
	}
	if !strings.EqualFold(cb.Value("pay_to_email"), g.meta.Get("email")) {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyAccount, "The status post is for a different Skrill account.")
	}

	status := skrillStatus(cb.Value("status"))
	g.logCallback(ctx, "validate", cb, status == models.StatusApproved)

	invoices, err := Base64DashCodec.Decode(cb.Value("invoices"))
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data on Skrill status post")
	}
	clientID := cb.Value("client_id")
	if clientID == "" {
		clientID = clientIDFromOrder(cb.Value("transaction_id"))
	}

	return &models.TransactionResult{
		Status:        status,
		ReferenceID:   cb.Value("transaction_id"),
		TransactionID: cb.Value("mb_transaction_id"),
		Message:       cb.Value("failed_reason_code"),
		ClientID:      clientID,
		Amount:        parseAmount(cb.Value("amount")),
		Currency:      cb.Value("currency"),
		Invoices:      invoices,
	}, nil
}

// Success handles the payer's return. The outcome arrives on status_url.
func (g *SkrillGateway) Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	g.logCallback(ctx, "success", cb, true)
	return &models.TransactionResult{
		Status:      models.StatusPending,
		ReferenceID: cb.Value("transaction_id"),
		ClientID:    cb.Value("client_id"),
	}, nil
}

// Refund runs Skrill's two-step refund: prepare returns a session id which
// the refund step then executes.
func (g *SkrillGateway) Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.ReferenceID == "" && ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	if g.meta.Get("api_password") == "" {
		return nil, ErrUnsupported
	}

	var prepare Fields
	prepare.Add("action", "prepare")
	prepare.Add("email", g.meta.Get("email"))
	prepare.Add("password", lowerMD5(g.meta.Get("api_password")))
	if ref.ReferenceID != "" {
		prepare.Add("transaction_id", ref.ReferenceID)
	} else {
		prepare.Add("mb_transaction_id", ref.TransactionID)
	}
	if ref.Amount.IsPositive() {
		prepare.Add("amount", formatAmount(ref.Amount))
	}
	if ref.Notes != "" {
		prepare.Add("refund_note", ref.Notes)
	}

	request := prepare.Map()
	g.logRequest(ctx, skrillRefundURL, request)
	raw, err := g.transport.Post(ctx, skrillRefundURL, prepare.Encode(), nil)
	if err != nil {
		g.logResponse(ctx, skrillRefundURL, raw, false, request)
		return g.transportFailure("refund", err), nil
	}
	response, err := ParseXML(raw)
	if err != nil {
		g.logResponse(ctx, skrillRefundURL, raw, false, request)
		return g.transportFailure("refund", err), nil
	}
	sid := response["sid"]
	if sid == "" {
		g.logResponse(ctx, skrillRefundURL, raw, false, request, response)
		return &models.TransactionResult{
			Status:              models.StatusDeclined,
			ParentTransactionID: ref.TransactionID,
			Message:             response["error_msg"],
		}, nil
	}
	g.logResponse(ctx, skrillRefundURL, raw, true, request, response)

	var execute Fields
	execute.Add("action", "refund")
	execute.Add("sid", sid)

	request = execute.Map()
	g.logRequest(ctx, skrillRefundURL, request)
	raw, err = g.transport.Post(ctx, skrillRefundURL, execute.Encode(), nil)
	if err != nil {
		g.logResponse(ctx, skrillRefundURL, raw, false, request)
		return g.transportFailure("refund", err), nil
	}
	response, err = ParseXML(raw)
	if err != nil {
		g.logResponse(ctx, skrillRefundURL, raw, false, request)
		return g.transportFailure("refund", err), nil
	}

	status := skrillRefundStatus(response["status"])
	g.logResponse(ctx, skrillRefundURL, raw, status == models.StatusRefunded, request, response)

	return &models.TransactionResult{
		Status:              status,
		TransactionID:       response["mb_transaction_id"],
		ParentTransactionID: ref.TransactionID,
		Message:             response["error"],
	}, nil
}

// Void is not offered by Skrill
func (g *SkrillGateway) Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// Capture is not offered by Skrill
func (g *SkrillGateway) Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

func skrillStatus(status string) models.TransactionStatus {
	switch strings.TrimSpace(status) {
	case "2":
		return models.StatusApproved
	case "0":
		return models.StatusPending
	case "-1", "-2":
		return models.StatusDeclined
	case "-3":
		return models.StatusRefunded
	}
	return models.StatusError
}

func skrillRefundStatus(status string) models.TransactionStatus {
	switch strings.TrimSpace(status) {
	case "2":
		return models.StatusRefunded
	case "0":
		return models.StatusPending
	case "-2":
		return models.StatusDeclined
	}
	return models.StatusError
}

func lowerMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
