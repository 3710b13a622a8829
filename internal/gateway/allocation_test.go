package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gateway-service/internal/models"
)

func sampleInvoices() []models.InvoiceAllocation {
	return []models.InvoiceAllocation{
		{ID: 100, Amount: decimal.RequireFromString("19.99")},
		{ID: 101, Amount: decimal.RequireFromString("5.01")},
	}
}

func assertSameInvoices(t *testing.T, want, got []models.InvoiceAllocation) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.True(t, want[i].Amount.Equal(got[i].Amount), "amount %d: want %s got %s", i, want[i].Amount, got[i].Amount)
	}
}

func TestInvoiceCodecs_Encode(t *testing.T) {
	invoices := sampleInvoices()

	assert.Equal(t, "100=19.99|101=5.01", PipeCodec.Encode(invoices))
	assert.Equal(t, "100_19.99-101_5.01", DashCodec.Encode(invoices))
	assert.Equal(t, "MTAwPTE5Ljk5fDEwMT01LjAx", Base64PipeCodec.Encode(invoices))
}

func TestInvoiceCodecs_RoundTrip(t *testing.T) {
	codecs := map[string]InvoiceCodec{
		"pipe":        PipeCodec,
		"dash":        DashCodec,
		"base64 pipe": Base64PipeCodec,
		"base64 dash": Base64DashCodec,
	}
	cases := [][]models.InvoiceAllocation{
		sampleInvoices(),
		{{ID: 1, Amount: decimal.NewFromInt(10)}},
		{{ID: 7, Amount: decimal.RequireFromString("0.5")}, {ID: 3, Amount: decimal.RequireFromString("1234.56")}, {ID: 9, Amount: decimal.RequireFromString("0.01")}},
	}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			for _, invoices := range cases {
				decoded, err := codec.Decode(codec.Encode(invoices))
				require.NoError(t, err)
				assertSameInvoices(t, invoices, decoded)
			}
		})
	}
}

func TestInvoiceCodecs_EmptyData(t *testing.T) {
	for _, codec := range []InvoiceCodec{PipeCodec, DashCodec, Base64PipeCodec, Base64DashCodec} {
		invoices, err := codec.Decode("")
		assert.NoError(t, err)
		assert.Nil(t, invoices)
	}
}

func TestBase64DashCodec_Decode(t *testing.T) {
	decoded, err := Base64DashCodec.Decode("MTAwXzEwLTEwMV8wLjU=")
	require.NoError(t, err)
	assertSameInvoices(t, []models.InvoiceAllocation{
		{ID: 100, Amount: decimal.NewFromInt(10)},
		{ID: 101, Amount: decimal.RequireFromString("0.5")},
	}, decoded)
}

func TestInvoiceCodecs_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		codec InvoiceCodec
		data  string
	}{
		{"pipe missing separator", PipeCodec, "100"},
		{"pipe bad id", PipeCodec, "abc=1.00"},
		{"pipe bad amount", PipeCodec, "100=ten"},
		{"dash bad amount", DashCodec, "100_x"},
		{"base64 garbage", Base64PipeCodec, "!!!not-base64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode(tt.data)
			assert.ErrorIs(t, err, ErrInvalidInvoiceData)
		})
	}
}
