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

func newTestPayza(transport Transport, sink LogSink) *PayzaGateway {
	gw := NewPayzaGateway(testOptions(transport, sink))
	gw.SetMeta(models.Settings{
		"merchant_id":  "merchant@example.com",
		"api_password": "Zx8q7WnH2",
		"test_mode":    "false",
	})
	gw.SetCurrency("USD")
	return gw
}

func payzaIPNResponse(merchant, state string) string {
	v := url.Values{}
	v.Set("ap_merchant", merchant)
	v.Set("ap_transactionstate", state)
	v.Set("ap_referencenumber", "PZ-00001")
	v.Set("ap_itemcode", "5-1700000000")
	v.Set("ap_totalamount", "25.00")
	v.Set("ap_currency", "USD")
	v.Set("apc_1", "5")
	v.Set("apc_2", "100_19.99-101_5.01")
	return v.Encode()
}

func TestPayza_BuildProcess(t *testing.T) {
	gw := newTestPayza(new(MockTransport), nil)

	form, err := gw.BuildProcess(context.Background(), testContact(), decimal.NewFromInt(25), sampleInvoices(), ProcessOptions{Description: "Invoices"})
	require.NoError(t, err)

	assert.Equal(t, payzaLiveURL, form.Action)
	assert.Equal(t, "merchant@example.com", form.Value("ap_merchant"))
	assert.Equal(t, "25.00", form.Value("ap_amount"))
	assert.Equal(t, "5", form.Value("apc_1"))
	assert.Equal(t, "100_19.99-101_5.01", form.Value("apc_2"))
	assert.Equal(t, "", form.Value("ap_test"))
}

func TestPayza_Validate(t *testing.T) {
	transport := new(MockTransport)
	sink := &recordingSink{}
	gw := newTestPayza(transport, sink)
	transport.On("Post", mock.Anything, payzaLiveIPNURL, "token=tok%2Babc", mock.Anything).
		Return(payzaIPNResponse("merchant@example.com", "Completed"), nil)

	result, err := gw.Validate(context.Background(), NewCallback(nil, url.Values{"token": {"tok+abc"}}))
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, "PZ-00001", result.TransactionID)
	assert.Equal(t, "5", result.ClientID)
	assert.Equal(t, "25.00", formatAmount(result.Amount))
	assertSameInvoices(t, sampleInvoices(), result.Invoices)
	assert.NotContains(t, sink.payloads(), "tok+abc")
}

func TestPayza_Validate_InvalidToken(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayza(transport, nil)
	transport.On("Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("INVALID TOKEN", nil)

	result, err := gw.Validate(context.Background(), NewCallback(nil, url.Values{"token": {"forged"}}))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeyVerification))
}

func TestPayza_Validate_OtherMerchant(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayza(transport, nil)
	transport.On("Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(payzaIPNResponse("other@example.com", "Completed"), nil)

	result, err := gw.Validate(context.Background(), NewCallback(nil, url.Values{"token": {"t"}}))
	assert.Nil(t, result)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has(ErrKeyAccount))
}

func TestPayza_Refund(t *testing.T) {
	transport := new(MockTransport)
	gw := newTestPayza(transport, nil)
	transport.On("Post", mock.Anything, payzaRefundURL, mock.Anything, mock.Anything).
		Return("RETURNCODE=100&REFERENCENUMBER=PZ-R1&DESCRIPTION=Transaction+was+completed+successfully", nil).Once()

	result, err := gw.Refund(context.Background(), &TransactionRef{TransactionID: "PZ-00001"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, result.Status)
	assert.Equal(t, "Transaction was completed successfully", result.Message)

	transport.On("Post", mock.Anything, payzaRefundURL, mock.Anything, mock.Anything).
		Return("RETURNCODE=315&DESCRIPTION=Invalid+transaction", nil).Once()
	result, err = gw.Refund(context.Background(), &TransactionRef{TransactionID: "PZ-00001"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, result.Status)
}

func TestPayzaStatus(t *testing.T) {
	assert.Equal(t, models.StatusApproved, payzaStatus("Completed"))
	assert.Equal(t, models.StatusPending, payzaStatus("Pending"))
	assert.Equal(t, models.StatusRefunded, payzaStatus("Refunded"))
	assert.Equal(t, models.StatusVoid, payzaStatus("Canceled"))
	assert.Equal(t, models.StatusDeclined, payzaStatus("Whatever"))
}
