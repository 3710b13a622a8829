package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ============================================================================
// eWay (Australia) XML gateway
// ============================================================================

const (
	ewayLiveURL      = "https://www.eway.com.au/gateway/xmlpayment.asp"
	ewayTestURL      = "https://www.eway.com.au/gateway/xmltest/testpage.asp"
	ewayLiveCVNURL   = "https://www.eway.com.au/gateway_cvn/xmlpayment.asp"
	ewayTestCVNURL   = "https://www.eway.com.au/gateway_cvn/xmltest/testpage.asp"
	ewayRefundURL    = "https://www.eway.com.au/gateway/xmlpaymentrefund.asp"
	ewayTestCustomer = "87654321"
	ewayTestCard     = "4444333322221111"
	ewayRoot         = "ewaygateway"
)

// EwayGateway implements CardGateway for eWay's XML API. eWay only offers
// purchase and refund.
type EwayGateway struct {
	base
}

// NewEwayGateway creates a new eWay gateway instance
func NewEwayGateway(opts Options) *EwayGateway {
	return &EwayGateway{
		base: newBase(models.GatewayEway, opts,
			[]string{"customer_id", "refund_password"},
			"ewayCustomerID", "ewayCardNumber", "ewayCVN", "ewayCardExpiryMonth",
			"ewayCardExpiryYear", "ewayRefundPassword",
		),
	}
}

func (g *EwayGateway) Name() string      { return "eWay" }
func (g *EwayGateway) Version() string   { return "1.1.0" }
func (g *EwayGateway) Authors() []string { return []string{"Gateway Service Team"} }

func (g *EwayGateway) Currencies() []string {
	return []string{"AUD"}
}

var ewayRules = RuleSet{
	Required("customer_id", "Please enter your eWay customer ID."),
	Numeric("customer_id", "The eWay customer ID must be numeric."),
	MaxLength("customer_id", 8, "The eWay customer ID may be at most 8 digits."),
	OneOf("test_mode", []string{"true", "false"}, "Test mode must be either true or false."),
}

// EditSettings validates eWay settings
func (g *EwayGateway) EditSettings(settings models.Settings) (models.Settings, ValidationErrors) {
	settings = defaultFlags(settings, "test_mode")
	return settings, ewayRules.Validate(settings)
}

func (g *EwayGateway) testMode() bool {
	return g.meta.Bool("test_mode")
}

// ProcessCC charges a card
func (g *EwayGateway) ProcessCC(ctx context.Context, charge *models.CardCharge) (*models.TransactionResult, error) {
	month, err := charge.Card.ExpiryMonth()
	if err != nil {
		return nil, err
	}
	year, err := charge.Card.ExpiryYear()
	if err != nil {
		return nil, err
	}

	customerID := g.meta.Get("customer_id")
	cardNumber := charge.Card.Number
	if g.testMode() {
		customerID = ewayTestCustomer
		cardNumber = ewayTestCard
	}

	var fields Fields
	fields.Add("ewayCustomerID", customerID)
	fields.Add("ewayTotalAmount", toCents(charge.Amount))
	fields.Add("ewayCustomerFirstName", charge.Card.FirstName)
	fields.Add("ewayCustomerLastName", charge.Card.LastName)
	fields.Add("ewayCustomerEmail", charge.Card.Email)
	fields.Add("ewayCustomerAddress", joinAddress(charge.Card.Address))
	fields.Add("ewayCustomerPostcode", charge.Card.Address.Zip)
	fields.Add("ewayCustomerInvoiceDescription", charge.Description)
	fields.Add("ewayCustomerInvoiceRef", PipeCodec.Encode(charge.Invoices))
	fields.Add("ewayCardHoldersName", strings.TrimSpace(charge.Card.FirstName+" "+charge.Card.LastName))
	fields.Add("ewayCardNumber", cardNumber)
	fields.Add("ewayCardExpiryMonth", month)
	fields.Add("ewayCardExpiryYear", year[2:])
	fields.Add("ewayTrxnNumber", "")
	fields.Add("ewayOption1", "")
	fields.Add("ewayOption2", "")
	fields.Add("ewayOption3", "")

	endpoint := ewayLiveURL
	if g.testMode() {
		endpoint = ewayTestURL
	}
	if charge.Card.SecurityCode != "" {
		fields.Add("ewayCVN", charge.Card.SecurityCode)
		endpoint = ewayLiveCVNURL
		if g.testMode() {
			endpoint = ewayTestCVNURL
		}
	}

	return g.submit(ctx, "process", endpoint, fields), nil
}

// AuthorizeCC is not offered by eWay
func (g *EwayGateway) AuthorizeCC(ctx context.Context, charge *models.CardCharge) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// CaptureCC is not offered by eWay
func (g *EwayGateway) CaptureCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// VoidCC is not offered by eWay
func (g *EwayGateway) VoidCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	return nil, ErrUnsupported
}

// RefundCC refunds an earlier charge
func (g *EwayGateway) RefundCC(ctx context.Context, ref *TransactionRef) (*models.TransactionResult, error) {
	if ref.TransactionID == "" {
		return nil, models.ErrMissingTransactionID
	}
	if !ref.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	customerID := g.meta.Get("customer_id")
	if g.testMode() {
		customerID = ewayTestCustomer
	}

	var fields Fields
	fields.Add("ewayCustomerID", customerID)
	fields.Add("ewayTotalAmount", toCents(ref.Amount))
	fields.Add("ewayCardExpiryMonth", "")
	fields.Add("ewayCardExpiryYear", "")
	fields.Add("ewayOriginalTrxnNumber", ref.TransactionID)
	fields.Add("ewayOption1", "")
	fields.Add("ewayOption2", "")
	fields.Add("ewayOption3", "")
	fields.Add("ewayRefundPassword", g.meta.Get("refund_password"))

	result := g.submit(ctx, "refund", ewayRefundURL, fields)
	result.Relabel(models.StatusRefunded)
	return result, nil
}

// submit posts the XML request and maps the ewayTrxnStatus flag
func (g *EwayGateway) submit(ctx context.Context, op, endpoint string, fields Fields) *models.TransactionResult {
	body, err := fields.EncodeXML(ewayRoot)
	if err != nil {
		return g.transportFailure(op, err)
	}

	request := fields.Map()
	g.logRequest(ctx, endpoint, request)

	raw, err := g.transport.Post(ctx, endpoint, body, map[string]string{"Content-Type": "text/xml"})
	if err != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		return g.transportFailure(op, err)
	}

	response, err := ParseXML(raw)
	if err != nil {
		g.logResponse(ctx, endpoint, raw, false, request)
		return g.transportFailure(op, err)
	}

	status := models.StatusDeclined
	if strings.EqualFold(response["ewayTrxnStatus"], "true") {
		status = models.StatusApproved
	}
	g.logResponse(ctx, endpoint, raw, status == models.StatusApproved, request, response)

	return &models.TransactionResult{
		Status:        status,
		ReferenceID:   response["ewayAuthCode"],
		TransactionID: response["ewayTrxnNumber"],
		Message:       response["ewayTrxnError"],
	}
}

// toCents converts an amount to whole cents
func toCents(amount decimal.Decimal) string {
	return strconv.FormatInt(amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), 10)
}

func joinAddress(addr models.Address) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{addr.Line1, addr.Line2, addr.City, addr.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
