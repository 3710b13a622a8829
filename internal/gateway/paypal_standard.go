package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// PayPal Payments Standard (redirect, IPN) with NVP refunds
// ============================================================================

const (
	paypalLiveURL       = "https://www.paypal.com/cgi-bin/webscr"
	paypalSandboxURL    = "https://www.sandbox.paypal.com/cgi-bin/webscr"
	paypalLiveNVPURL    = "https://api-3t.paypal.com/nvp"
	paypalSandboxNVPURL = "https://api-3t.sandbox.paypal.com/nvp"
	paypalNVPVersion    = "204.0"
	paypalVerified      = "VERIFIED"
)

// PayPalStandardGateway implements RedirectGateway for PayPal Payments Standard
type PayPalStandardGateway struct {
	base
}

// NewPayPalStandardGateway creates a new PayPal Payments Standard gateway instance
func NewPayPalStandardGateway(opts Options) *PayPalStandardGateway {
	return &PayPalStandardGateway{
		base: newBase(models.GatewayPayPalStandard, opts,
			[]string{"account_id", "api_password", "api_signature"},
			"PWD", "SIGNATURE",
		),
	}
}

func (g *PayPalStandardGateway) Name() string      { return "PayPal Payments Standard" }
func (g *PayPalStandardGateway) Version() string   { return "1.4.0" }
func (g *PayPalStandardGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *PayPalStandardGateway) Currencies() []string {
	return []string{
		"AUD", "BRL", "CAD", "CZK", "DKK", "EUR", "HKD", "HUF", "ILS", "JPY",
		"MYR", "MXN", "NOK", "NZD", "PHP", "PLN", "GBP", "RUB", "SGD", "SEK",
		"CHF", "TWD", "THB", "USD",
	}
}

var paypalStandardRules = RuleSet{
	Required("account_id", "Please enter the e-mail address of your PayPal account."),
	Email("account_id", "The PayPal account must be a valid e-mail address."),
	MaxLength("api_username", 128, "The API username may be at most 128 characters."),
	MaxLength("api_signature", 128, "The API signature may be at most 128 characters."),
	OneOf("dev_mode", []string{"true", "false"}, "Developer mode must be either true or false."),
}

// EditSettings validates PayPal Payments Standard settings
func (g *PayPalStandardGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "dev_mode")
	return settings, paypalStandardRules.Validate(settings)
}

func (g *PayPalStandardGateway) sandbox() bool {
	return g.meta.Bool("dev_mode")
}

func (g *PayPalStandardGateway) webscrURL() string {
	if g.sandbox() {
		return paypalSandboxURL
	}
	return paypalLiveURL
}

// BuildProcess returns the _xclick payment form
func (g *PayPalStandardGateway) BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error) {
	if err := models.ValidateAmount(amount, invoices); err != nil {
		return nil, err
	}

	clientQuery := map[string]string{"client_id": contact.ClientID}

	form := NewPostForm(g.webscrURL())
	form.Add("cmd", "_xclick")
	form.Add("business", g.meta.Get("account_id"))
	form.Add("item_name", opts.Description)
	form.Add("item_number", g.orderID(contact.ClientID))
	form.Add("amount", formatAmount(amount))
	form.Add("currency_code", g.currency)
	form.Add("custom", PipeCodec.Encode(invoices))
	form.AddIfSet("notify_url", withQuery(opts.NotifyURL, clientQuery))
	form.AddIfSet("return", withQuery(opts.ReturnURL, clientQuery))
	form.AddIfSet("cancel_return", opts.CancelURL)
	form.Add("rm", "2")
	form.Add("no_shipping", "1")
	form.Add("charset", "utf-8")
	form.AddIfSet("first_name", contact.FirstName)
	form.AddIfSet("last_name", contact.LastName)
	form.AddIfSet("email", contact.Email)
	form.AddIfSet("address1", contact.Address.Line1)
	form.AddIfSet("address2", contact.Address.Line2)
	form.AddIfSet("city", contact.Address.City)
	form.AddIfSet("state", contact.Address.State)
	form.AddIfSet("zip", contact.Address.Zip)
	form.AddIfSet("country", contact.Address.Country)

	g.logRequest(ctx, form.Action, form.Fields.Map())
	return form, nil
}

// Validate posts the IPN back to PayPal and accepts it only when PayPal
// answers VERIFIED and the payment was made to this account
func (g *PayPalStandardGateway) Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	original := cb.Body
	if original == "" {
		original = cb.Post.Encode()
	}

	endpoint := g.webscrURL()
	raw, err := g.transport.Post(ctx, endpoint, "cmd=_notify-validate&"+original, nil)
	if err != nil || strings.TrimSpace(raw) != paypalVerified {
		if err != nil {
			g.logger.WithError(err).Warn("PayPal IPN verification request failed")
		}
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyVerification, "PayPal did not verify the notification.")
	}

	receiver := cb.Value("receiver_email")
	if receiver == "" {
		receiver = cb.Value("business")
	}
	if !strings.EqualFold(strings.TrimSpace(receiver), strings.TrimSpace(g.meta.Get("account_id"))) {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyAccount, "The notification is for a different PayPal account.")
	}

	result := g.ipnResult(cb)
	g.logCallback(ctx, "validate", cb, result.Status != models.StatusError)
	return result, nil
}

// Success normalizes the payer's return. Nothing on the return is verified;
// the IPN settles the payment.
func (g *PayPalStandardGateway) Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	g.logCallback(ctx, "success", cb, true)
	if cb.Value("payment_status") == "" {
		return &models.TransactionResult{
			Status:        models.StatusPending,
			TransactionID: cb.Value("txn_id"),
			ClientID:      cb.Get.Get("client_id"),
		}, nil
	}
	return g.ipnResult(cb), nil
}

func (g *PayPalStandardGateway) ipnResult(cb *Callback) *models.TransactionResult {
	invoices, err := PipeCodec.Decode(cb.Value("custom"))
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data on PayPal notification")
	}
	clientID := cb.Get.Get("client_id")
	if clientID == "" {
		clientID = clientIDFromOrder(cb.Value("item_number"))
	}
	return &models.TransactionResult{
		Status:              paypalStatus(cb.Value("payment_status")),
		ReferenceID:         cb.Value("item_number"),
		TransactionID:       cb.Value("txn_id"),
		ParentTransactionID: cb.Value("parent_txn_id"),
		Message:             cb.Value("pending_reason"),
		ClientID:            clientID,
		Amount:              parseAmount(cb.Value("mc_gross")),
		Currency:            cb.Value("mc_currency"),
		Invoices:            invoices,
	}
}

// Refund refunds a payment through the NVP RefundTransaction call. It needs
// the API credentials; accounts configured without them cannot refund.
func (g *PayPalStandardGateway) Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	if g.meta.Get("api_username") == "" || g.meta.Get("api_password") == "" || g.meta.Get("api_signature") == "" {
		return nil, ErrUnsupported
	}
	if ref.Amount.IsPositive() && g.currency == "" {
		return nil, integrityError(ErrKeyCurrency, "A currency is required for a partial refund.")
	}

	var fields Fields
	fields.Add("METHOD", "RefundTransaction")
	fields.Add("VERSION", paypalNVPVersion)
	fields.Add("USER", g.meta.Get("api_username"))
	fields.Add("PWD", g.meta.Get("api_password"))
	fields.Add("SIGNATURE", g.meta.Get("api_signature"))
	fields.Add("TRANSACTIONID", ref.TransactionID)
	if ref.Amount.IsPositive() {
		fields.Add("REFUNDTYPE", "Partial")
		fields.Add("AMT", formatAmount(ref.Amount))
		fields.Add("CURRENCYCODE", g.currency)
	} else {
		fields.Add("REFUNDTYPE", "Full")
	}
	if ref.Notes != "" {
		fields.Add("NOTE", ref.Notes)
	}

	endpoint := paypalLiveNVPURL
	if g.sandbox() {
		endpoint = paypalSandboxNVPURL
	}
	request := fields.Map()
	g.logRequest(ctx, endpoint, request)

	raw, err := g.transport.Post(ctx, endpoint, fields.Encode(), nil)
	if err != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		return g.transportFailure("refund", err), nil
	}

	response := ParseQuery(raw)
	result := &models.TransactionResult{
		Status:              models.StatusDeclined,
		TransactionID:       response["REFUNDTRANSACTIONID"],
		ParentTransactionID: ref.TransactionID,
		Message:             response["L_LONGMESSAGE0"],
	}
	switch response["ACK"] {
	case "Success", "SuccessWithWarning":
		result.Status = models.StatusApproved
	case "":
		result.Status = models.StatusError
	}
	g.logResponse(ctx, endpoint, raw, result.Status == models.StatusApproved, request, response)

	result.Relabel(models.StatusRefunded)
	return result, nil
}

// Void is not offered by PayPal Payments Standard
func (g *PayPalStandardGateway) Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// Capture is not offered by PayPal Payments Standard
func (g *PayPalStandardGateway) Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

func paypalStatus(status string) models.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "canceled_reversal", "processed":
		return models.StatusApproved
	case "pending":
		return models.StatusPending
	case "refunded":
		return models.StatusRefunded
	case "reversed":
		return models.StatusReturned
	case "voided":
		return models.StatusVoid
	case "denied", "expired", "failed":
		return models.StatusDeclined
	}
	return models.StatusError
}
