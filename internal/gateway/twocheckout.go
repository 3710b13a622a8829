package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// 2Checkout (redirect checkout, INS notifications)
// ============================================================================

const (
	twoCheckoutPurchaseURL = "https://www.2checkout.com/checkout/purchase"
	twoCheckoutRefundURL   = "https://www.2checkout.com/api/sales/refund_invoice"
)

// TwoCheckoutGateway implements RedirectGateway for 2Checkout
type TwoCheckoutGateway struct {
	base
}

// NewTwoCheckoutGateway creates a new 2Checkout gateway instance
func NewTwoCheckoutGateway(opts Options) *TwoCheckoutGateway {
	return &TwoCheckoutGateway{
		base: newBase(models.GatewayTwoCheckout, opts,
			[]string{"vendor_id", "secret_word", "api_password"},
			"Authorization",
		),
	}
}

func (g *TwoCheckoutGateway) Name() string      { return "2Checkout" }
func (g *TwoCheckoutGateway) Version() string   { return "1.3.0" }
func (g *TwoCheckoutGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *TwoCheckoutGateway) Currencies() []string {
	return []string{
		"AED", "ARS", "AUD", "BRL", "CAD", "CHF", "DKK", "EUR", "GBP", "HKD",
		"IDR", "ILS", "INR", "JPY", "LTL", "MXN", "MYR", "NOK", "NZD", "PHP",
		"RON", "RUB", "SEK", "SGD", "TRY", "UAH", "USD", "ZAR",
	}
}

var twoCheckoutRules = RuleSet{
	Required("vendor_id", "Please enter your 2Checkout vendor account number."),
	Numeric("vendor_id", "The vendor account number must be numeric."),
	Required("secret_word", "Please enter your 2Checkout secret word."),
	MaxLength("secret_word", 64, "The secret word may be at most 64 characters."),
	OneOf("demo_mode", []string{"true", "false"}, "Demo mode must be either true or false."),
}

// EditSettings validates 2Checkout settings
func (g *TwoCheckoutGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "demo_mode")
	return settings, twoCheckoutRules.Validate(settings)
}

// BuildProcess returns the purchase form
func (g *TwoCheckoutGateway) BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error) {
	if err := models.ValidateAmount(amount, invoices); err != nil {
		return nil, err
	}

	form := NewPostForm(twoCheckoutPurchaseURL)
	form.Add("sid", g.meta.Get("vendor_id"))
	form.Add("mode", "2CO")
	form.Add("li_0_type", "product")
	form.Add("li_0_name", opts.Description)
	form.Add("li_0_price", formatAmount(amount))
	form.Add("li_0_quantity", "1")
	form.Add("li_0_tangible", "N")
	form.Add("currency_code", g.currency)
	form.Add("merchant_order_id", g.orderID(contact.ClientID))
	form.AddIfSet("card_holder_name", contact.FullName())
	form.AddIfSet("street_address", contact.Address.Line1)
	form.AddIfSet("street_address2", contact.Address.Line2)
	form.AddIfSet("city", contact.Address.City)
	form.AddIfSet("state", contact.Address.State)
	form.AddIfSet("zip", contact.Address.Zip)
	form.AddIfSet("country", contact.Address.Country)
	form.AddIfSet("email", contact.Email)
	form.AddIfSet("phone", contact.Phone)
	form.AddIfSet("x_receipt_link_url", withQuery(opts.ReturnURL, map[string]string{"client_id": contact.ClientID}))
	// Pass-through fields, returned to x_receipt_link_url
	form.Add("client_id", contact.ClientID)
	form.Add("invoices", Base64PipeCodec.Encode(invoices))
	if g.meta.Bool("demo_mode") {
		form.Add("demo", "Y")
	}

	g.logRequest(ctx, twoCheckoutPurchaseURL, form.Fields.Map())
	return form, nil
}

// Validate authenticates an INS notification
func (g *TwoCheckoutGateway) Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	saleID := cb.Value("sale_id")
	vendorID := cb.Value("vendor_id")
	invoiceID := cb.Value("invoice_id")

	expected := upperMD5(saleID + vendorID + invoiceID + g.meta.Get("secret_word"))
	if !signaturesMatch(expected, cb.Value("md5_hash")) {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeySignature, "The 2Checkout notification hash does not match.")
	}
	if vendorID != g.meta.Get("vendor_id") {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyAccount, "The notification is for a different 2Checkout account.")
	}

	status := twoCheckoutINSStatus(cb.Value("message_type"), cb.Value("invoice_status"), cb.Value("fraud_status"))
	g.logCallback(ctx, "validate", cb, true)

	orderID := cb.Value("vendor_order_id")
	clientID := cb.Get.Get("client_id")
	if clientID == "" {
		clientID = clientIDFromOrder(orderID)
	}
	invoices, err := Base64PipeCodec.Decode(cb.Value("invoices"))
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data on 2Checkout notification")
	}

	amount := cb.Value("invoice_list_amount")
	if amount == "" {
		amount = cb.Value("item_list_amount_1")
	}

	return &models.TransactionResult{
		Status:        status,
		ReferenceID:   invoiceID,
		TransactionID: saleID,
		ClientID:      clientID,
		Amount:        parseAmount(amount),
		Currency:      cb.Value("list_currency"),
		Invoices:      invoices,
	}, nil
}

// Success normalizes the payer's return to x_receipt_link_url
func (g *TwoCheckoutGateway) Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	orderNumber := cb.Value("order_number")
	hashOrder := orderNumber
	if g.meta.Bool("demo_mode") || cb.Value("demo") == "Y" {
		hashOrder = "1"
	}

	expected := upperMD5(g.meta.Get("secret_word") + g.meta.Get("vendor_id") + hashOrder + cb.Value("total"))
	if !signaturesMatch(expected, cb.Value("key")) {
		g.logCallback(ctx, "success", cb, false)
		return nil, integrityError(ErrKeySignature, "The 2Checkout return key does not match.")
	}

	var status models.TransactionStatus
	switch strings.ToUpper(cb.Value("credit_card_processed")) {
	case "Y":
		status = models.StatusApproved
	case "K":
		status = models.StatusPending
	default:
		status = models.StatusDeclined
	}
	g.logCallback(ctx, "success", cb, status == models.StatusApproved)

	invoices, err := Base64PipeCodec.Decode(cb.Value("invoices"))
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data on 2Checkout return")
	}
	clientID := cb.Value("client_id")
	if clientID == "" {
		clientID = clientIDFromOrder(cb.Value("merchant_order_id"))
	}

	return &models.TransactionResult{
		Status:        status,
		ReferenceID:   cb.Value("invoice_id"),
		TransactionID: orderNumber,
		ClientID:      clientID,
		Amount:        parseAmount(cb.Value("total")),
		Currency:      cb.Value("currency_code"),
		Invoices:      invoices,
	}, nil
}

// Refund refunds a sale through the 2Checkout back office API
func (g *TwoCheckoutGateway) Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	if g.meta.Get("api_username") == "" || g.meta.Get("api_password") == "" {
		return nil, ErrUnsupported
	}

	comment := ref.Notes
	if comment == "" {
		comment = "Refund issued"
	}

	var fields Fields
	fields.Add("sale_id", ref.TransactionID)
	if ref.Amount.IsPositive() {
		fields.Add("amount", formatAmount(ref.Amount))
		fields.Add("currency", "vendor")
	}
	fields.Add("category", "5")
	fields.Add("comment", comment)

	request := fields.Map()
	g.logRequest(ctx, twoCheckoutRefundURL, request)

	auth := base64.StdEncoding.EncodeToString([]byte(g.meta.Get("api_username") + ":" + g.meta.Get("api_password")))
	raw, err := g.transport.Post(ctx, twoCheckoutRefundURL, fields.Encode(), map[string]string{
		"Accept":        "application/json",
		"Authorization": "Basic " + auth,
	})

	var response struct {
		ResponseCode    string `json:"response_code"`
		ResponseMessage string `json:"response_message"`
		Errors          []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if raw == "" || json.Unmarshal([]byte(raw), &response) != nil {
		if err == nil {
			err = ErrMalformedResponse
		}
		g.logResponse(ctx, twoCheckoutRefundURL, raw, false, request)
		return g.transportFailure("refund", err), nil
	}

	result := &models.TransactionResult{
		Status:              models.StatusDeclined,
		ParentTransactionID: ref.TransactionID,
		Message:             response.ResponseMessage,
	}
	if response.ResponseCode == "OK" {
		result.Status = models.StatusApproved
	} else if len(response.Errors) > 0 {
		result.Message = response.Errors[0].Message
	}
	g.logResponse(ctx, twoCheckoutRefundURL, raw, result.Status == models.StatusApproved, request)

	result.Relabel(models.StatusRefunded)
	return result, nil
}

// Void is not offered by 2Checkout
func (g *TwoCheckoutGateway) Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// Capture is not offered by 2Checkout
func (g *TwoCheckoutGateway) Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// twoCheckoutINSStatus maps an INS message to a status
func twoCheckoutINSStatus(messageType, invoiceStatus, fraudStatus string) models.TransactionStatus {
	switch strings.ToUpper(messageType) {
	case "ORDER_CREATED", "INVOICE_STATUS_CHANGED":
		switch strings.ToLower(invoiceStatus) {
		case "approved", "deposited":
			return models.StatusApproved
		case "pending":
			return models.StatusPending
		case "declined":
			return models.StatusDeclined
		}
	case "FRAUD_STATUS_CHANGED":
		switch strings.ToLower(fraudStatus) {
		case "pass":
			return models.StatusApproved
		case "wait":
			return models.StatusPending
		case "fail":
			return models.StatusDeclined
		}
	case "REFUND_ISSUED":
		return models.StatusRefunded
	}
	return models.StatusError
}
