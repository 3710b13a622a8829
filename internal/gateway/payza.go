package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// Payza (redirect, IPN2 token confirmation)
// ============================================================================

const (
	payzaLiveURL        = "https://secure.payza.com/checkout"
	payzaSandboxURL     = "https://sandbox.payza.com/sandbox/payprocess.aspx"
	payzaLiveIPNURL     = "https://secure.payza.com/ipn2.ashx"
	payzaSandboxIPNURL  = "https://sandbox.payza.com/sandbox/IPN2.ashx"
	payzaRefundURL      = "https://api.payza.com/svc/api.svc/RefundTransaction"
	payzaInvalidToken   = "INVALID TOKEN"
	payzaRefundAccepted = "100"
)

// PayzaGateway implements RedirectGateway for Payza
type PayzaGateway struct {
	base
}

// NewPayzaGateway creates a new Payza gateway instance
func NewPayzaGateway(opts Options) *PayzaGateway {
	return &PayzaGateway{
		base: newBase(models.GatewayPayza, opts,
			[]string{"merchant_id", "api_password"},
			"PASSWORD", "token",
		),
	}
}

func (g *PayzaGateway) Name() string      { return "Payza" }
func (g *PayzaGateway) Version() string   { return "1.0.1" }
func (g *PayzaGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *PayzaGateway) Currencies() []string {
	return []string{
		"AUD", "BGN", "CAD", "CHF", "CZK", "DKK", "EEK", "EUR", "GBP", "HKD",
		"HUF", "INR", "LTL", "MYR", "MKD", "NOK", "NZD", "PLN", "RON", "SEK",
		"SGD", "USD", "ZAR",
	}
}

var payzaRules = RuleSet{
	Required("merchant_id", "Please enter the e-mail address of your Payza account."),
	Email("merchant_id", "The Payza account must be a valid e-mail address."),
	MaxLength("api_password", 64, "The API password may be at most 64 characters."),
	OneOf("test_mode", []string{"true", "false"}, "Test mode must be either true or false."),
}

// EditSettings validates Payza settings
func (g *PayzaGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "test_mode")
	return settings, payzaRules.Validate(settings)
}

func (g *PayzaGateway) testMode() bool {
	return g.meta.Bool("test_mode")
}

// BuildProcess returns the Payza checkout form
func (g *PayzaGateway) BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error) {
	if err := models.ValidateAmount(amount, invoices); err != nil {
		return nil, err
	}

	action := payzaLiveURL
	if g.testMode() {
		action = payzaSandboxURL
	}
	clientQuery := map[string]string{"client_id": contact.ClientID}

	form := NewPostForm(action)
	form.Add("ap_merchant", g.meta.Get("merchant_id"))
	form.Add("ap_purchasetype", "service")
	form.Add("ap_itemname", opts.Description)
	form.Add("ap_amount", formatAmount(amount))
	form.Add("ap_currency", g.currency)
	form.Add("ap_quantity", "1")
	form.Add("ap_itemcode", g.orderID(contact.ClientID))
	form.Add("apc_1", contact.ClientID)
	form.Add("apc_2", DashCodec.Encode(invoices))
	form.AddIfSet("ap_alerturl", withQuery(opts.NotifyURL, clientQuery))
	form.AddIfSet("ap_returnurl", withQuery(opts.ReturnURL, clientQuery))
	form.AddIfSet("ap_cancelurl", opts.CancelURL)
	form.AddIfSet("ap_fname", contact.FirstName)
	form.AddIfSet("ap_lname", contact.LastName)
	form.AddIfSet("ap_contactemail", contact.Email)
	form.AddIfSet("ap_contactphone", contact.Phone)
	form.AddIfSet("ap_addressline1", contact.Address.Line1)
	form.AddIfSet("ap_addressline2", contact.Address.Line2)
	form.AddIfSet("ap_city", contact.Address.City)
	form.AddIfSet("ap_stateprovince", contact.Address.State)
	form.AddIfSet("ap_zippostalcode", contact.Address.Zip)
	form.AddIfSet("ap_country", contact.Address.Country)
	if g.testMode() {
		form.Add("ap_test", "1")
	}

	g.logRequest(ctx, action, form.Fields.Map())
	return form, nil
}

// Validate exchanges the IPN2 token for the transaction details. Payza only
// sends the token; everything else comes from the confirmation response.
func (g *PayzaGateway) Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	token := cb.Value("token")
	if token == "" {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyPayload, "The Payza notification has no token.")
	}
	g.logCallback(ctx, "validate", cb, true)

	endpoint := payzaLiveIPNURL
	if g.testMode() {
		endpoint = payzaSandboxIPNURL
	}
	known := map[string]string{"token": token}
	raw, err := g.transport.Post(ctx, endpoint, "token="+url.QueryEscape(token), nil)
	trimmed := strings.TrimSpace(raw)
	if err != nil || trimmed == "" || strings.EqualFold(trimmed, payzaInvalidToken) {
		g.logResponse(ctx, endpoint, raw, false, known)
		if err != nil {
			g.logger.WithError(err).Warn("Payza IPN2 token confirmation failed")
		}
		return nil, integrityError(ErrKeyVerification, "Payza did not confirm the notification token.")
	}

	response := ParseQuery(trimmed)
	if !strings.EqualFold(response["ap_merchant"], g.meta.Get("merchant_id")) {
		g.logResponse(ctx, endpoint, raw, false, known, response)
		return nil, integrityError(ErrKeyAccount, "The notification is for a different Payza account.")
	}

	status := payzaStatus(response["ap_transactionstate"])
	g.logResponse(ctx, endpoint, raw, status == models.StatusApproved, known, response)

	invoices, err := DashCodec.Decode(response["apc_2"])
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data on Payza notification")
	}
	amount := response["ap_totalamount"]
	if amount == "" {
		amount = response["ap_amount"]
	}
	clientID := response["apc_1"]
	if clientID == "" {
		clientID = cb.Get.Get("client_id")
	}

	return &models.TransactionResult{
		Status:        status,
		ReferenceID:   response["ap_itemcode"],
		TransactionID: response["ap_referencenumber"],
		ClientID:      clientID,
		Amount:        parseAmount(amount),
		Currency:      response["ap_currency"],
		Invoices:      invoices,
	}, nil
}

// Success handles the payer's return. The outcome arrives by IPN.
func (g *PayzaGateway) Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	g.logCallback(ctx, "success", cb, true)
	return &models.TransactionResult{
		Status:   models.StatusPending,
		ClientID: cb.Value("client_id"),
	}, nil
}

// Refund refunds a transaction through the RefundTransaction API
func (g *PayzaGateway) Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	if g.meta.Get("api_password") == "" {
		return nil, ErrUnsupported
	}

	var fields Fields
	fields.Add("USER", g.meta.Get("merchant_id"))
	fields.Add("PASSWORD", g.meta.Get("api_password"))
	fields.Add("TRANSACTIONREFERENCE", ref.TransactionID)
	if ref.Amount.IsPositive() {
		fields.Add("AMOUNT", formatAmount(ref.Amount))
	}
	if ref.Notes != "" {
		fields.Add("NOTE", ref.Notes)
	}
	if g.testMode() {
		fields.Add("TESTMODE", "1")
	} else {
		fields.Add("TESTMODE", "0")
	}

	request := fields.Map()
	g.logRequest(ctx, payzaRefundURL, request)

	raw, err := g.transport.Post(ctx, payzaRefundURL, fields.Encode(), nil)
	if err != nil {
		g.logResponse(ctx, payzaRefundURL, raw, false, request)
		return g.transportFailure("refund", err), nil
	}

	response := ParseQuery(raw)
	result := &models.TransactionResult{
		Status:              models.StatusDeclined,
		TransactionID:       response["REFERENCENUMBER"],
		ParentTransactionID: ref.TransactionID,
		Message:             response["DESCRIPTION"],
	}
	if strings.TrimSpace(response["RETURNCODE"]) == payzaRefundAccepted {
		result.Status = models.StatusRefunded
	}
	g.logResponse(ctx, payzaRefundURL, raw, result.Status == models.StatusRefunded, request, response)
	return result, nil
}

// Void is not offered by Payza
func (g *PayzaGateway) Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// Capture is not offered by Payza
func (g *PayzaGateway) Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// payzaStatus maps ap_transactionstate. Unlisted states are declines.
func payzaStatus(state string) models.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "completed":
		return models.StatusApproved
	case "pending":
		return models.StatusPending
	case "refunded":
		return models.StatusRefunded
	case "canceled":
		return models.StatusVoid
	}
	return models.StatusDeclined
}
