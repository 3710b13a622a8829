package gateway

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gateway-service/internal/models"
)

// ErrInvalidInvoiceData is returned when an invoice allocation blob cannot be decoded
var ErrInvalidInvoiceData = errors.New("invalid invoice allocation data")

// InvoiceCodec serializes invoice allocations into a single field that a
// processor echoes back on its callback. Encodings are wire contracts with
// payments already in flight and must not change.
type InvoiceCodec interface {
	Encode(invoices []models.InvoiceAllocation) string
	Decode(data string) ([]models.InvoiceAllocation, error)
}

var (
	// PipeCodec encodes "id=amount|id=amount"
	PipeCodec InvoiceCodec = delimitedCodec{pairSep: "|", valueSep: "="}
	// DashCodec encodes "id_amount-id_amount"
	DashCodec InvoiceCodec = delimitedCodec{pairSep: "-", valueSep: "_"}
	// Base64PipeCodec is PipeCodec wrapped in standard base64
	Base64PipeCodec InvoiceCodec = Base64Codec(PipeCodec)
	// Base64DashCodec is DashCodec wrapped in standard base64
	Base64DashCodec InvoiceCodec = Base64Codec(DashCodec)
)

type delimitedCodec struct {
	pairSep  string
	valueSep string
}

func (c delimitedCodec) Encode(invoices []models.InvoiceAllocation) string {
	parts := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		parts = append(parts, strconv.FormatInt(inv.ID, 10)+c.valueSep+inv.Amount.String())
	}
	return strings.Join(parts, c.pairSep)
}

func (c delimitedCodec) Decode(data string) ([]models.InvoiceAllocation, error) {
	if data == "" {
		return nil, nil
	}
	pairs := strings.Split(data, c.pairSep)
	invoices := make([]models.InvoiceAllocation, 0, len(pairs))
	for _, pair := range pairs {
		idPart, amountPart, ok := strings.Cut(pair, c.valueSep)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidInvoiceData, pair)
		}
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invoice id %q", ErrInvalidInvoiceData, idPart)
		}
		amount, err := decimal.NewFromString(amountPart)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrInvalidInvoiceData, amountPart)
		}
		invoices = append(invoices, models.InvoiceAllocation{ID: id, Amount: amount})
	}
	return invoices, nil
}

type base64Codec struct {
	inner InvoiceCodec
}

// Base64Codec wraps another codec's output in standard base64
func Base64Codec(inner InvoiceCodec) InvoiceCodec {
	return base64Codec{inner: inner}
}

func (c base64Codec) Encode(invoices []models.InvoiceAllocation) string {
	return base64.StdEncoding.EncodeToString([]byte(c.inner.Encode(invoices)))
}

func (c base64Codec) Decode(data string) ([]models.InvoiceAllocation, error) {
	if data == "" {
		return nil, nil
	}
	// '+' arrives as a space when a processor form-decodes the echoed value
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(data, " ", "+"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvoiceData, err)
	}
	return c.inner.Decode(string(raw))
}
