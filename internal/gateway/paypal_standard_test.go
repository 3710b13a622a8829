package gateway

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gateway-service/internal/models"
)

func newTestPayPal(transport Transport, sink LogSink) *PayPalStandardGateway {
	gw := NewPayPalStandardGateway(testOptions(transport, sink))
	gw.SetMeta(models.Settings{
		"account_id":    "seller@example.com",
		"api_username":  "seller_api1.example.com",
		"api_password":  "QFZCWN5HZM8VBG7Q",
		"api_signature": "A-IzJhZZjhg29XQ2qnhapuwxIDzyAZQ92FRP5dqBzVesOkzbdUONzmOU",
		"dev_mode":      "true",
	})
	gw.SetCurrency("USD")
	return gw
}

const paypalIPNBody = "mc_gross=19.99&protection_eligibility=Eligible&payment_status=Completed" +
	"&receiver_email=seller%40example.com&txn_id=61E67681CH3238416&item_number=5-1700000000" +
	"&custom=100%3D19.99&mc_currency=USD"

func paypalIPN(t *testing.T) *Callback {
	t.Helper()
	post, err := url.ParseQuery(paypalIPNBody)
	require.NoError(t, err)
	cb := NewCallback(url.Values{"client_id": {"5"}}, post)
	cb.Body = paypalIPNBody
	return cb
}

func TestPayPalStandard_BuildProcess(t *testing.T) {
	gw := newTestPayPal(new(MockTransport), nil)

	form, err := gw.BuildProcess(context.Background(), testContact(), decimal.RequireFromString("19.99"),
		[]models.InvoiceAllocation{{ID: 100, Amount: decimal.RequireFromString("19.99")}},
		ProcessOptions{
			Description: "Invoice 100",
			NotifyURL:   "https://billing.example.com/callback/paypal-standard",
			ReturnURL:   "https://billing.example.com/return/paypal-standard",
			CancelURL:   "https://billing.example.com/cancel",
		})
	require.NoError(t, err)

	assert.Equal(t, paypalSandboxURL, form.Action)
	assert.Equal(t, "_xclick", form.Value("cmd"))
	assert.Equal(t, "seller@example.com", form.Value("business"))
	assert.Equal(t, "5-1700000000", form.Value("item_number"))
	assert.Equal(t, "19.99", form.Value("amount"))
	assert.Equal(t, "100=19.99", form.Value("custom"))
	assert.Equal(t, "https://billing.example.com/callback/paypal-standard?client_id=5", form.Value("notify_url"))
	assert.Equal(t, "https://billing.example.com/cancel", form.Value("cancel_return"))
}

func TestPayPalStandard_Validate_Verified(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayPal(transport, nil)
	transport.On("Post", mock.Anything, paypalSandboxURL, "cmd=_notify-validate&"+paypalIPNBody, mock.Anything).
		Return("VERIFIED", nil)

	result, err := gw.Validate(context.Background(), paypalIPN(t))
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, "61E67681CH3238416", result.TransactionID)
	assert.Equal(t, "5", result.ClientID)
	assert.Equal(t, "19.99", formatAmount(result.Amount))
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, int64(100), result.Invoices[0].ID)
	transport.AssertExpectations(t)
}

func TestPayPalStandard_Validate_Invalid(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayPal(transport, nil)
	transport.On("Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("INVALID", nil)

	result, err := gw.Validate(context.Background(), paypalIPN(t))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeyVerification))
}

func TestPayPalStandard_Validate_TransportFailure(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayPal(transport, nil)
	transport.On("Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	result, err := gw.Validate(context.Background(), paypalIPN(t))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeyVerification))
}

func TestPayPalStandard_Validate_OtherReceiver(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayPal(transport, nil)
	transport.On("Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("VERIFIED", nil)

	cb := paypalIPN(t)
	cb.Post.Set("receiver_email", "attacker@example.com")
	cb.Body = cb.Post.Encode()

	result, err := gw.Validate(context.Background(), cb)
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeyAccount))
}

func TestPayPalStandard_Refund(t *testing.T) {
	transport := new(MockTransport)
	sink := &recordingSink{}
	gw := newTestPayPal(transport, sink)

	var body string
	transport.On("Post", mock.Anything, paypalSandboxNVPURL, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { body = args.String(2) }).
		Return("REFUNDTRANSACTIONID=9E679139T5135712L&ACK=Success&VERSION=204.0", nil)

	result, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "61E67681CH3238416"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusRefunded, result.Status)
	assert.Equal(t, "9E679139T5135712L", result.TransactionID)
	assert.Equal(t, "61E67681CH3238416", result.ParentTransactionID)
	assert.True(t, strings.HasPrefix(body, "METHOD=RefundTransaction&"))
	assert.Contains(t, body, "REFUNDTYPE=Full")

	logs := sink.payloads()
	assert.NotContains(t, logs, "QFZCWN5HZM8VBG7Q")
	assert.NotContains(t, logs, "A-IzJhZZjhg29XQ2qnhapuwxIDzyAZQ92FRP5dqBzVesOkzbdUONzmOU")
}

func TestPayPalStandard_RefundFailure(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayPal(transport, nil)
	transport.On("Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("ACK=Failure&L_LONGMESSAGE0=This%20transaction%20has%20already%20been%20fully%20refunded", nil)

	result, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "61E67681CH3238416", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, result.Status)
	assert.Equal(t, "This transaction has already been fully refunded", result.Message)
}

func TestPayPalStandard_RefundWithoutAPICredentials(t *testing.T) {
	transport := new(MockTransport)
	gw := NewPayPalStandardGateway(testOptions(transport, nil))
	gw.SetMeta(models.Settings{"account_id": "seller@example.com"})

	_, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "1"})
	assert.ErrorIs(t, err, ErrUnsupported)
	transport.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayPalStandard_PartialRefundNeedsCurrency(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayPal(transport, nil)
	gw.SetCurrency("")

	result, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "8MC585209K746392H", Amount: decimal.NewFromInt(5)})
	assert.Nil(t, result)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has(ErrKeyCurrency))
	transport.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayPalStatus(t *testing.T) {
	tests := map[string]models.TransactionStatus{
		"Completed":         models.StatusApproved,
		"Canceled_Reversal": models.StatusApproved,
		"Processed":         models.StatusApproved,
		"Pending":           models.StatusPending,
		"Refunded":          models.StatusRefunded,
		"Reversed":          models.StatusReturned,
		"Voided":            models.StatusVoid,
		"Denied":            models.StatusDeclined,
		"Expired":           models.StatusDeclined,
		"Failed":            models.StatusDeclined,
		"Created":           models.StatusError,
		"":                  models.StatusError,
	}

	for status, want := range tests {
		assert.Equal(t, want, paypalStatus(status), "payment_status=%q", status)
	}
}
