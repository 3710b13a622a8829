package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// BitPay (hosted invoices, confirmed by fetching the invoice)
// ============================================================================

const (
	bitpayLiveURL = "https://bitpay.com/api/invoice"
	bitpayTestURL = "https://test.bitpay.com/api/invoice"
)

// BitPayGateway implements RedirectGateway for BitPay
type BitPayGateway struct {
	base
}

// NewBitPayGateway creates a new BitPay gateway instance
func NewBitPayGateway(opts Options) *BitPayGateway {
	return &BitPayGateway{
		base: newBase(models.GatewayBitPay, opts, []string{"api_key"}),
	}
}

func (g *BitPayGateway) Name() string      { return "BitPay" }
func (g *BitPayGateway) Version() string   { return "1.1.0" }
func (g *BitPayGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *BitPayGateway) Currencies() []string {
	return []string{
		"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CNY", "CHF", "SEK", "NZD",
		"KRW", "BRL", "MXN", "INR", "SGD", "HKD", "NOK", "DKK", "PLN", "ZAR",
		"BTC",
	}
}

var bitpayRules = RuleSet{
	Required("api_key", "Please enter your BitPay API key."),
	MaxLength("api_key", 128, "The API key may be at most 128 characters."),
	OneOf("transaction_speed", []string{"high", "medium", "low"}, "Transaction speed must be high, medium or low."),
	OneOf("test_mode", []string{"true", "false"}, "Test mode must be either true or false."),
}

// EditSettings validates BitPay settings
func (g *BitPayGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "test_mode")
	return settings, bitpayRules.Validate(settings)
}

type bitpayPosData struct {
	ClientID string `json:"client_id"`
	Invoices string `json:"invoices"`
}

type bitpayInvoiceRequest struct {
	Price             string `json:"price"`
	Currency          string `json:"currency"`
	OrderID           string `json:"orderID"`
	ItemDesc          string `json:"itemDesc,omitempty"`
	PosData           string `json:"posData"`
	NotificationURL   string `json:"notificationURL,omitempty"`
	RedirectURL       string `json:"redirectURL,omitempty"`
	TransactionSpeed  string `json:"transactionSpeed,omitempty"`
	FullNotifications bool   `json:"fullNotifications"`
	BuyerName         string `json:"buyerName,omitempty"`
	BuyerEmail        string `json:"buyerEmail,omitempty"`
	BuyerAddress1     string `json:"buyerAddress1,omitempty"`
	BuyerCity         string `json:"buyerCity,omitempty"`
	BuyerState        string `json:"buyerState,omitempty"`
	BuyerZip          string `json:"buyerZip,omitempty"`
	BuyerCountry      string `json:"buyerCountry,omitempty"`
}

type bitpayInvoice struct {
	ID       string          `json:"id"`
	URL      string          `json:"url"`
	Status   string          `json:"status"`
	Price    json.Number     `json:"price"`
	Currency string          `json:"currency"`
	PosData  string          `json:"posData"`
	OrderID  string          `json:"orderID"`
	Error    *bitpayAPIError `json:"error,omitempty"`
}

type bitpayAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (g *BitPayGateway) baseURL() string {
	if g.meta.Bool("test_mode") {
		return bitpayTestURL
	}
	return bitpayLiveURL
}

func (g *BitPayGateway) headers() map[string]string {
	auth := base64.StdEncoding.EncodeToString([]byte(g.meta.Get("api_key") + ":"))
	return map[string]string{
		"Authorization": "Basic " + auth,
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	}
}

// BuildProcess creates a BitPay invoice and links the payer to it
func (g *BitPayGateway) BuildProcess(ctx context.Context, contact *models.Contact, amount decimal.Decimal, invoices []models.InvoiceAllocation, opts ProcessOptions) (*ProcessForm, error) {
	if err := models.ValidateAmount(amount, invoices); err != nil {
		return nil, err
	}

	posData, err := json.Marshal(bitpayPosData{
		ClientID: contact.ClientID,
		Invoices: Base64PipeCodec.Encode(invoices),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode posData: %w", err)
	}

	orderID := g.orderID(contact.ClientID)
	req := bitpayInvoiceRequest{
		Price:             formatAmount(amount),
		Currency:          g.currency,
		OrderID:           orderID,
		ItemDesc:          opts.Description,
		PosData:           string(posData),
		NotificationURL:   withQuery(opts.NotifyURL, map[string]string{"client_id": contact.ClientID}),
		RedirectURL:       withQuery(opts.ReturnURL, map[string]string{"client_id": contact.ClientID, "order_id": orderID}),
		TransactionSpeed:  g.meta.Get("transaction_speed"),
		FullNotifications: true,
		BuyerName:         contact.FullName(),
		BuyerEmail:        contact.Email,
		BuyerAddress1:     contact.Address.Line1,
		BuyerCity:         contact.Address.City,
		BuyerState:        contact.Address.State,
		BuyerZip:          contact.Address.Zip,
		BuyerCountry:      contact.Address.Country,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice request: %w", err)
	}

	endpoint := g.baseURL()
	request := map[string]string{
		"price":           req.Price,
		"currency":        req.Currency,
		"orderID":         req.OrderID,
		"posData":         req.PosData,
		"notificationURL": req.NotificationURL,
		"redirectURL":     req.RedirectURL,
	}
	g.logRequest(ctx, endpoint, request)

	raw, err := g.transport.Post(ctx, endpoint, string(body), g.headers())
	var invoice bitpayInvoice
	if raw == "" || json.Unmarshal([]byte(raw), &invoice) != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		if err == nil {
			err = ErrMalformedResponse
		}
		g.logger.WithError(err).Error("BitPay invoice request failed")
		return nil, NewGatewayError("invoice_failed", "BitPay invoice could not be created", true)
	}
	if invoice.Error != nil || invoice.URL == "" {
		g.logResponse(ctx, endpoint, raw, false, request)
		message := "BitPay did not return an invoice URL"
		if invoice.Error != nil {
			message = invoice.Error.Message
		}
		return nil, NewGatewayError("invoice_failed", message, false)
	}
	g.logResponse(ctx, endpoint, raw, true, request)

	return NewRedirect(invoice.URL), nil
}

// Validate re-fetches the invoice named in the notification and trusts
// only the fetched copy
func (g *BitPayGateway) Validate(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	invoiceID := cb.Value("id")
	if invoiceID == "" {
		g.logCallback(ctx, "validate", cb, false)
		return nil, integrityError(ErrKeyPayload, "The BitPay notification has no invoice id.")
	}
	g.logCallback(ctx, "validate", cb, true)

	endpoint := g.baseURL() + "/" + url.PathEscape(invoiceID)
	raw, err := g.transport.Get(ctx, endpoint, g.headers())

	var invoice bitpayInvoice
	if err != nil || json.Unmarshal([]byte(raw), &invoice) != nil || invoice.ID != invoiceID {
		g.logResponse(ctx, endpoint, raw, false)
		if err != nil {
			g.logger.WithError(err).Warn("failed to fetch BitPay invoice")
		}
		return nil, integrityError(ErrKeyVerification, "The BitPay invoice could not be confirmed.")
	}

	status := bitpayStatus(invoice.Status)
	g.logResponse(ctx, endpoint, raw, status != models.StatusError)

	result := &models.TransactionResult{
		Status:        status,
		TransactionID: invoice.ID,
		ReferenceID:   invoice.OrderID,
		Amount:        parseAmount(invoice.Price.String()),
		Currency:      invoice.Currency,
	}
	g.applyPosData(result, invoice.PosData)
	if result.ClientID == "" {
		result.ClientID = cb.Get.Get("client_id")
	}
	return result, nil
}

// Success handles the payer's return. The outcome arrives later by notification.
func (g *BitPayGateway) Success(ctx context.Context, cb *Callback) (*models.TransactionResult, error) {
	g.logCallback(ctx, "success", cb, true)
	return &models.TransactionResult{
		Status:      models.StatusPending,
		ReferenceID: cb.Value("order_id"),
		ClientID:    cb.Value("client_id"),
	}, nil
}

func (g *BitPayGateway) applyPosData(result *models.TransactionResult, raw string) {
	if raw == "" {
		return
	}
	var pos bitpayPosData
	if err := json.Unmarshal([]byte(raw), &pos); err != nil {
		g.logger.WithError(err).Warn("unreadable BitPay posData")
		return
	}
	result.ClientID = pos.ClientID
	invoices, err := Base64PipeCodec.Decode(pos.Invoices)
	if err != nil {
		g.logger.WithError(err).Warn("unreadable invoice data in BitPay posData")
		return
	}
	result.Invoices = invoices
}

// Refund is not offered by BitPay
func (g *BitPayGateway) Refund(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// Void is not offered by BitPay
func (g *BitPayGateway) Void(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// Capture is not offered by BitPay
func (g *BitPayGateway) Capture(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

func bitpayStatus(status string) models.TransactionStatus {
	switch strings.ToLower(status) {
	case "new", "paid":
		return models.StatusPending
	case "confirmed", "complete":
		return models.StatusApproved
	case "expired", "invalid":
		return models.StatusDeclined
	}
	return models.StatusError
}
