package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// PagSeguro (Brazil) checkout tokens and notification lookups
// ============================================================================

const (
	pagseguroLiveAPI      = "https://ws.pagseguro.uol.com.br"
	pagseguroSandboxAPI   = "https://ws.sandbox.pagseguro.uol.com.br"
	pagseguroLivePayment  = "https://pagseguro.uol.com.br/v2/checkout/payment.html"
	pagseguroSandboxPay   = "https://sandbox.pagseguro.uol.com.br/v2/checkout/payment.html"
	pagseguroFormEncoding = "application/x-www-form-urlencoded; charset=ISO-8859-1"
)

// PagSeguroGateway implements RedirectGateway for PagSeguro
type PagSeguroGateway struct {
	base
}

// NewPagSeguroGateway creates a new PagSeguro gateway instance
func NewPagSeguroGateway(opts Options) *PagSeguroGateway {
	return &PagSeguroGateway{
		base: newBase(models.GatewayPagSeguro, opts, []string{"email", "token"}, "token"),
	}
}

func (g *PagSeguroGateway) Name() string      { return "PagSeguro" }
func (g *PagSeguroGateway) Version() string   { return "1.0.2" }
func (g *PagSeguroGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *PagSeguroGateway) Currencies() []string {
	return []string{"BRL"}
}

var pagseguroRules = RuleSet{
	Required("email", "Please enter the e-mail of your PagSeguro account."),
	Email("email", "The PagSeguro account must be a valid e-mail address."),
	Required("token", "Please enter your PagSeguro token."),
	MaxLength("token", 32, "The PagSeguro token may be at most 32 characters."),
	OneOf("test_mode", []string{"true", "false"}, "Test mode must be either true or false."),
}

// EditSettings validates PagSeguro settings
func (g *PagSeguroGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "test_mode")
	return settings, pagseguroRules.Validate(settings)
}

func (g *PagSeguroGateway) apiURL(path string) string {
	if g.meta.Bool("test_mode") {
		return pagseguroSandboxAPI + path
	}
	return pagseguroLiveAPI + path
}

func (g *PagSeguroGateway) credentials() Fields {
	var fields Fields
	fields.Add("email", g.meta.Get("email"))
	fields.Add("token", g.meta.Get("token"))
	return fields
}

// BuildProcess requests a checkout code and links the payer to the payment page
func (g *PagSeguroGateway) BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error) {
	if err := models.ValidateAmount(amount, invoices); err != nil {
		return nil, err
	}

	description := opts.Description
	if description == "" {
		description = "Invoice payment"
	}

	fields := g.credentials()
	fields.Add("currency", "BRL")
	fields.Add("itemId1", g.orderID(contact.ClientID))
	fields.Add("itemDescription1", description)
	fields.Add("itemAmount1", formatAmount(amount))
	fields.Add("itemQuantity1", "1")
	fields.Add("reference", DashCodec.Encode(invoices))
	if name := contact.FullName(); name != "" {
		fields.Add("senderName", name)
	}
	if contact.Email != "" {
		fields.Add("senderEmail", contact.Email)
	}
	if notify := withQuery(opts.NotifyURL, map[string]string{"client_id": contact.ClientID}); notify != "" {
		fields.Add("notificationURL", notify)
	}
	if redirect := withQuery(opts.ReturnURL, map[string]string{"client_id": contact.ClientID}); redirect != "" {
		fields.Add("redirectURL", redirect)
	}

	endpoint := g.apiURL("/v2/checkout")
	request := fields.Map()
	g.logRequest(ctx, endpoint, request)

	raw, err := g.transport.Post(ctx, endpoint, fields.Encode(), map[string]string{"Content-Type": pagseguroFormEncoding})
	root, response, perr := ParseXMLRoot(raw)
	if perr != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		if err == nil {
			err = perr
		}
		g.logger.WithError(err).Error("PagSeguro checkout request failed")
		return nil, NewGatewayError("checkout_failed", "PagSeguro checkout could not be created", true)
	}
	if root != "checkout" || response["code"] == "" {
		g.logResponse(ctx, endpoint, raw, false, request, response)
		message := "PagSeguro rejected the checkout request"
		if _, errs, e := ParseXMLRoot(pagseguroFirstError(raw)); e == nil && errs["message"] != "" {
			message = errs["message"]
		}
		return nil, NewGatewayError("checkout_failed", message, false)
	}
	g.logResponse(ctx, endpoint, raw, true, request, response)

	payURL := pagseguroLivePayment
	if g.meta.Bool("test_mode") {
		payURL = pagseguroSandboxPay
	}
	return NewRedirect(withQuery(payURL, map[string]string{"code": response["code"]})), nil
}

// Validate looks up the transaction named by a notification code. Only the
// looked-up copy is trusted.
func (g *PagSeguroGateway) Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	code := cb.Value("notificationCode")
	if code == "" {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyPayload, "The PagSeguro notification has no notification code.")
	}
	g.logCallback(ctx, "validate", cb, true)

	response, ok := g.lookup(ctx, "/v3/transactions/notifications/"+url.PathEscape(code))
	if !ok {
		return nil, integrityError(ErrKeyVerification, "The PagSeguro notification could not be confirmed.")
	}
	return g.transactionResult(cb, response), nil
}

// Success handles the payer's return. When PagSeguro passes the transaction
// code back the transaction is looked up, otherwise the payment is pending.
func (g *PagSeguroGateway) Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	g.logCallback(ctx, "success", cb, true)

	code := cb.Value("transaction_id")
	if code == "" {
		return &models.TransactionResult{
			Status:   models.StatusPending,
			ClientID: cb.Value("client_id"),
		}, nil
	}

	response, ok := g.lookup(ctx, "/v3/transactions/"+url.PathEscape(code))
	if !ok {
		return &models.TransactionResult{
			Status:        models.StatusPending,
			TransactionID: code,
			ClientID:      cb.Value("client_id"),
		}, nil
	}
	return g.transactionResult(cb, response), nil
}

// lookup fetches a <transaction> document
func (g *PagSeguroGateway) lookup(ctx context.Context, path string) (map[string]string, bool) {
	query := url.Values{}
	query.Set("email", g.meta.Get("email"))
	query.Set("token", g.meta.Get("token"))
	endpoint := g.apiURL(path)

	raw, err := g.transport.Get(ctx, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		g.logResponse(ctx, endpoint, raw, false)
		g.logger.WithError(err).Warn("failed to look up PagSeguro transaction")
		return nil, false
	}
	root, response, err := ParseXMLRoot(raw)
	if err != nil || root != "transaction" {
		g.logResponse(ctx, endpoint, raw, false)
		return nil, false
	}
	g.logResponse(ctx, endpoint, raw, true, response)
	return response, true
}

func (g *PagSeguroGateway) transactionResult(cb *Callback, response map[string]string) *models.TransactionResult {
	invoices, err := DashCodec.Decode(response["reference"])
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data on PagSeguro transaction")
	}
	return &models.TransactionResult{
		Status:        pagseguroStatus(response["status"]),
		TransactionID: response["code"],
		ReferenceID:   response["reference"],
		ClientID:      cb.Get.Get("client_id"),
		Amount:        parseAmount(response["grossAmount"]),
		Currency:      "BRL",
		Invoices:      invoices,
	}
}

// Refund refunds a transaction, in full or in part
func (g *PagSeguroGateway) Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	fields := g.credentials()
	fields.Add("transactionCode", ref.TransactionID)
	if ref.Amount.IsPositive() {
		fields.Add("refundValue", formatAmount(ref.Amount))
	}
	return g.transactionAction(ctx, "refund", "/v2/transactions/refunds", fields, ref, models.StatusRefunded), nil
}

// Void cancels a transaction that has not been paid out yet
func (g *PagSeguroGateway) Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	fields := g.credentials()
	fields.Add("transactionCode", ref.TransactionID)
	return g.transactionAction(ctx, "void", "/v2/transactions/cancels", fields, ref, models.StatusVoid), nil
}

// Capture is not offered by PagSeguro
func (g *PagSeguroGateway) Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// transactionAction posts a refund or cancel. PagSeguro answers
// <result>OK</result> on success and an <errors> document otherwise.
func (g *PagSeguroGateway) transactionAction(ctx context.Context, op, path string, fields Fields, ref *TransactionRef, onSuccess models.TransactionStatus) *models.TransactionResult {
	endpoint := g.apiURL(path)
	request := fields.Map()
	g.logRequest(ctx, endpoint, request)

	raw, err := g.transport.Post(ctx, endpoint, fields.Encode(), map[string]string{"Content-Type": pagseguroFormEncoding})
	if err != nil && raw == "" {
		g.logResponse(ctx, endpoint, raw, false, request)
		return g.transportFailure(op, err)
	}
	root, response, perr := ParseXMLRoot(raw)
	if perr != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		return g.transportFailure(op, perr)
	}

	result := &models.TransactionResult{
		Status:              models.StatusDeclined,
		TransactionID:       ref.TransactionID,
		ParentTransactionID: ref.TransactionID,
	}
	if root == "result" && strings.EqualFold(strings.TrimSpace(pagseguroText(raw)), "OK") {
		result.Status = onSuccess
	} else if _, errs, e := ParseXMLRoot(pagseguroFirstError(raw)); e == nil {
		result.Message = errs["message"]
	}
	g.logResponse(ctx, endpoint, raw, result.Status == onSuccess, request, response)
	return result
}

// pagseguroFirstError extracts the first <error> element of an <errors> document
func pagseguroFirstError(raw string) string {
	start := strings.Index(raw, "<error>")
	end := strings.Index(raw, "</error>")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+len("</error>")]
}

// pagseguroText returns the character data of a single-element document such
// as <result>OK</result>
func pagseguroText(raw string) string {
	start := strings.Index(raw, "<result>")
	end := strings.Index(raw, "</result>")
	if start < 0 || end < start {
		return ""
	}
	return raw[start+len("<result>") : end]
}

func pagseguroStatus(status string) models.TransactionStatus {
	switch strings.TrimSpace(status) {
	case "1", "2":
		return models.StatusPending
	case "3", "4":
		return models.StatusApproved
	case "5":
		return models.StatusVoid
	case "6":
		return models.StatusRefunded
	case "7":
		return models.StatusDeclined
	}
	return models.StatusError
}
