package gateway

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gateway-service/internal/models"
)

func newTestSkrill(transport Transport, sink LogSink) *SkrillGateway {
	gw := NewSkrillGateway(testOptions(transport, sink))
	gw.SetMeta(models.Settings{
		"email":        "merchant@example.com",
		"secret_word":  "mysecret",
		"api_password": "apipass",
		"language":     "DE",
	})
	gw.SetCurrency("EUR")
	return gw
}

func skrillStatusPost() url.Values {
	return url.Values{
		"pay_to_email":      {"merchant@example.com"},
		"merchant_id":       {"12345"},
		"transaction_id":    {"5-1700000000"},
		"mb_transaction_id": {"987654"},
		"mb_amount":         {"10.00"},
		"mb_currency":       {"EUR"},
		"status":            {"2"},
		"md5sig":            {"990BC1462C3478971373EF1243765C4D"},
		"amount":            {"10.00"},
		"currency":          {"EUR"},
		"client_id":         {"5"},
		"invoices":          {Base64DashCodec.Encode([]models.InvoiceAllocation{{ID: 100, Amount: decimal.NewFromInt(10)}})},
	}
}

func TestSkrill_BuildProcess(t *testing.T) {
	gw := newTestSkrill(new(MockTransport), nil)

	form, err := gw.BuildProcess(context.Background(), testContact(), decimal.NewFromInt(10), nil,
		ProcessOptions{Description: "Invoice 100", NotifyURL: "https://billing.example.com/callback/skrill?tenant_id=t1"})
	require.NoError(t, err)

	assert.Equal(t, skrillPaymentURL, form.Action)
	assert.Equal(t, "merchant@example.com", form.Value("pay_to_email"))
	assert.Equal(t, "5-1700000000", form.Value("transaction_id"))
	assert.Equal(t, "DE", form.Value("language"))
	assert.Equal(t, "client_id,invoices", form.Value("merchant_fields"))
	assert.Equal(t, "10.00", form.Value("amount"))
	assert.Equal(t, "EUR", form.Value("currency"))

	status, err := url.Parse(form.Value("status_url"))
	require.NoError(t, err)
	assert.Equal(t, "5", status.Query().Get("client_id"))
	assert.Equal(t, "t1", status.Query().Get("tenant_id"))
}

func TestSkrill_Validate(t *testing.T) {
	gw := newTestSkrill(new(MockTransport), nil)

	result, err := gw.Validate(context.Background(), NewCallback(nil, skrillStatusPost()))
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, "987654", result.TransactionID)
	assert.Equal(t, "5-1700000000", result.ReferenceID)
	assert.Equal(t, "5", result.ClientID)
	assert.Equal(t, "EUR", result.Currency)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, int64(100), result.Invoices[0].ID)
}

func TestSkrill_Validate_BadSignature(t *testing.T) {
	gw := newTestSkrill(new(MockTransport), nil)
	post := skrillStatusPost()
	post.Set("mb_amount", "1000.00")

	result, err := gw.Validate(context.Background(), NewCallback(nil, post))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeySignature))
}

func TestSkrill_Validate_OtherAccount(t *testing.T) {
	gw := newTestSkrill(new(MockTransport), nil)
	post := skrillStatusPost()
	post.Set("pay_to_email", "someone-else@example.com")

	result, err := gw.Validate(context.Background(), NewCallback(nil, post))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeyAccount))
}

func TestSkrill_RefundTwoSteps(t *testing.T) {
	transport := new(MockTransport)
	sink := &recordingSink{}
	gw := newTestSkrill(transport, sink)

	var bodies []string
	transport.On("Post", mock.Anything, skrillRefundURL, mock.MatchedBy(func(body string) bool {
		return strings.HasPrefix(body, "action=prepare&")
	}), mock.Anything).
		Run(func(args mock.Arguments) { bodies = append(bodies, args.String(2)) }).
		Return(`<?xml version="1.0" encoding="UTF-8"?><response><sid>7783bfa23641a627</sid></response>`, nil).Once()
	transport.On("Post", mock.Anything, skrillRefundURL, "action=refund&sid=7783bfa23641a627", mock.Anything).
		Run(func(args mock.Arguments) { bodies = append(bodies, args.String(2)) }).
		Return(`<?xml version="1.0" encoding="UTF-8"?><response><mb_amount>10.00</mb_amount><mb_currency>EUR</mb_currency>`+
			`<mb_transaction_id>987660</mb_transaction_id><status>2</status></response>`, nil).Once()

	result, err := gw.Refund(context.Background(), &TransactionRef{
		ReferenceID:   "5-1700000000",
		TransactionID: "987654",
		Amount:        decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusRefunded, result.Status)
	assert.Equal(t, "987660", result.TransactionID)
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "password=146079b602960d62e6df7c96b4502b32")
	assert.Contains(t, bodies[0], "transaction_id=5-1700000000")
	assert.NotContains(t, sink.payloads(), "146079b602960d62e6df7c96b4502b32")
	transport.AssertExpectations(t)
}

func TestSkrill_RefundPrepareRejected(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestSkrill(transport, nil)
	transport.On("Post", mock.Anything, skrillRefundURL, mock.Anything, mock.Anything).
		Return(`<response><error><error_msg>CANNOT_LOGIN</error_msg></error></response>`, nil).Once()

	result, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "987654"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, result.Status)
	transport.AssertNumberOfCalls(t, "Post", 1)
}

func TestSkrillStatus(t *testing.T) {
	assert.Equal(t, models.StatusApproved, skrillStatus("2"))
	assert.Equal(t, models.StatusPending, skrillStatus("0"))
	assert.Equal(t, models.StatusDeclined, skrillStatus("-1"))
	assert.Equal(t, models.StatusDeclined, skrillStatus("-2"))
	assert.Equal(t, models.StatusRefunded, skrillStatus("-3"))
	assert.Equal(t, models.StatusError, skrillStatus("1"))

	assert.Equal(t, models.StatusRefunded, skrillRefundStatus("2"))
	assert.Equal(t, models.StatusPending, skrillRefundStatus("0"))
	assert.Equal(t, models.StatusDeclined, skrillRefundStatus("-2"))
	assert.Equal(t, models.StatusError, skrillRefundStatus(""))
}
