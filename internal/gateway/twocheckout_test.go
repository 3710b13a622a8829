package gateway

import (
	"context"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gateway-service/internal/models"
)

func newTestTwoCheckout(transport Transport, sink LogSink, demo bool) *TwoCheckoutGateway {
	gw := NewTwoCheckoutGateway(testOptions(transport, sink))
	mode := "false"
	if demo {
		mode = "true"
	}
	gw.SetMeta(models.Settings{
		"vendor_id":    "1303908",
		"secret_word":  "tango",
		"api_username": "apiuser",
		"api_password": "apipass",
		"demo_mode":    mode,
	})
	gw.SetCurrency("USD")
	return gw
}

func testContact() *models.Contact {
	return &models.Contact{
		ClientID:  "5",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Address:   models.Address{Line1: "1 Main St", City: "Columbus", State: "OH", Zip: "43215", Country: "USA"},
	}
}

func TestTwoCheckout_BuildProcess(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestTwoCheckout(transport, nil, true)

	form, err := gw.BuildProcess(context.Background(), testContact(), decimal.NewFromInt(25),
		[]models.InvoiceAllocation{{ID: 100, Amount: decimal.RequireFromString("19.99")}, {ID: 101, Amount: decimal.RequireFromString("5.01")}},
		ProcessOptions{Description: "Invoices 100, 101", ReturnURL: "https://billing.example.com/return/2checkout"})
	require.NoError(t, err)

	assert.Equal(t, "POST", form.Method)
	assert.Equal(t, twoCheckoutPurchaseURL, form.Action)
	assert.Equal(t, "1303908", form.Value("sid"))
	assert.Equal(t, "25.00", form.Value("li_0_price"))
	assert.Equal(t, "USD", form.Value("currency_code"))
	assert.Equal(t, "5-1700000000", form.Value("merchant_order_id"))
	assert.Equal(t, "MTAwPTE5Ljk5fDEwMT01LjAx", form.Value("invoices"))
	assert.Equal(t, "Y", form.Value("demo"))
	assert.Equal(t, "https://billing.example.com/return/2checkout?client_id=5", form.Value("x_receipt_link_url"))
	transport.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTwoCheckout_BuildProcess_InvoiceMismatch(t *testing.T) {
	gw := newTestTwoCheckout(new(MockTransport), nil, false)

	_, err := gw.BuildProcess(context.Background(), testContact(), decimal.NewFromInt(25),
		[]models.InvoiceAllocation{{ID: 100, Amount: decimal.NewFromInt(20)}}, ProcessOptions{})
	assert.ErrorIs(t, err, models.ErrInvoiceSumMismatch)
}

func TestTwoCheckout_Success_DemoKey(t *testing.T) {
	gw := newTestTwoCheckout(new(MockTransport), nil, true)

	cb := NewCallback(url.Values{"client_id": {"5"}}, url.Values{
		"order_number":          {"4834917628"},
		"total":                 {"10.00"},
		"key":                   {"73C864CD339B3FCC4F372FD7DFBDFE3C"},
		"credit_card_processed": {"Y"},
		"merchant_order_id":     {"5-1700000000"},
		"invoices":              {"MTAwPTE5Ljk5fDEwMT01LjAx"},
		"currency_code":         {"USD"},
	})

	result, err := gw.Success(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, "4834917628", result.TransactionID)
	assert.Equal(t, "5", result.ClientID)
	assert.Equal(t, "10.00", formatAmount(result.Amount))
	assertSameInvoices(t, sampleInvoices(), result.Invoices)
}

func TestTwoCheckout_Success_LowerCaseKeyAccepted(t *testing.T) {
	gw := newTestTwoCheckout(new(MockTransport), nil, true)

	result, err := gw.Success(context.Background(), NewCallback(nil, url.Values{
		"order_number":          {"1"},
		"total":                 {"10.00"},
		"key":                   {"73c864cd339b3fcc4f372fd7dfbdfe3c"},
		"credit_card_processed": {"K"},
	}))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, result.Status)
}

func TestTwoCheckout_Success_GarbageSignature(t *testing.T) {
	sink := &recordingSink{}
	gw := newTestTwoCheckout(new(MockTransport), sink, false)

	cb := NewCallback(nil, url.Values{
		"key":          {"garbage"},
		"total":        {"10.00"},
		"order_number": {"5-123456"},
	})

	result, err := gw.Success(context.Background(), cb)
	assert.Nil(t, result)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 1)
	assert.True(t, errs.Has(ErrKeySignature))
	require.Len(t, sink.entries, 1)
	assert.False(t, sink.entries[0].Success)
}

func TestTwoCheckout_Validate_INS(t *testing.T) {
	gw := newTestTwoCheckout(new(MockTransport), nil, false)

	post := url.Values{
		"message_type":        {"ORDER_CREATED"},
		"sale_id":             {"4834917619"},
		"vendor_id":           {"1303908"},
		"invoice_id":          {"4834917628"},
		"md5_hash":            {"B4FDD45FF3ED313709F38C19A901B454"},
		"invoice_status":      {"approved"},
		"vendor_order_id":     {"5-1700000000"},
		"invoice_list_amount": {"25.00"},
		"list_currency":       {"USD"},
	}

	result, err := gw.Validate(context.Background(), NewCallback(nil, post))
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, "4834917619", result.TransactionID)
	assert.Equal(t, "4834917628", result.ReferenceID)
	assert.Equal(t, "5", result.ClientID)
	assert.Equal(t, "USD", result.Currency)

	post.Set("md5_hash", "00000000000000000000000000000000")
	result, err = gw.Validate(context.Background(), NewCallback(nil, post))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeySignature))
}

func TestTwoCheckout_Refund(t *testing.T) {
	transport := new(MockTransport)
	sink := &recordingSink{}
	gw := newTestTwoCheckout(transport, sink, false)

	var headers map[string]string
	transport.On("Post", mock.Anything, twoCheckoutRefundURL, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { headers = args.Get(3).(map[string]string) }).
		Return(`{"response_code":"OK","response_message":"refund added to invoice"}`, nil)

	result, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "4834917619", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, result.Status)
	assert.Equal(t, "4834917619", result.ParentTransactionID)
	assert.Contains(t, headers["Authorization"], "Basic ")
	assert.NotContains(t, sink.payloads(), "apipass")
}

func TestTwoCheckout_VoidUnsupported(t *testing.T) {
	gw := newTestTwoCheckout(new(MockTransport), nil, false)

	_, err := gw.Void(context.Background(), &TransactionRef{TransactionID: "1"})
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = gw.Capture(context.Background(), &TransactionRef{TransactionID: "1"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTwoCheckoutINSStatus(t *testing.T) {
	assert.Equal(t, models.StatusApproved, twoCheckoutINSStatus("INVOICE_STATUS_CHANGED", "deposited", ""))
	assert.Equal(t, models.StatusPending, twoCheckoutINSStatus("ORDER_CREATED", "pending", ""))
	assert.Equal(t, models.StatusDeclined, twoCheckoutINSStatus("FRAUD_STATUS_CHANGED", "", "fail"))
	assert.Equal(t, models.StatusRefunded, twoCheckoutINSStatus("REFUND_ISSUED", "", ""))
	assert.Equal(t, models.StatusError, twoCheckoutINSStatus("RECURRING_INSTALLMENT_SUCCESS", "", ""))
	assert.Equal(t, models.StatusError, twoCheckoutINSStatus("ORDER_CREATED", "mystery", ""))
}
