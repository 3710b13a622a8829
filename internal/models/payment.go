package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Payment input errors
var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvoiceSumMismatch   = errors.New("invoice allocations must sum to the charge amount")
	ErrUnknownGatewayType   = errors.New("unknown gateway type")
	ErrInvalidCardExpiry    = errors.New("card expiry must be in yyyymm format")
	ErrMissingTransactionID = errors.New("transaction id is required")
)

// GatewayType represents the payment gateway provider
type GatewayType string

const (
	GatewayEway           GatewayType = "EWAY"
	GatewayPayflowPro     GatewayType = "PAYFLOW_PRO"
	GatewayTwoCheckout    GatewayType = "TWOCHECKOUT"
	GatewayBitPay         GatewayType = "BITPAY"
	GatewayPagSeguro      GatewayType = "PAGSEGURO"
	GatewayPayPalStandard GatewayType = "PAYPAL_STANDARD"
	GatewayPayza          GatewayType = "PAYZA"
	GatewaySkrill         GatewayType = "SKRILL"
)

// ParseGatewayType accepts the constant value or its lower-case, hyphenated URL form
func ParseGatewayType(s string) (GatewayType, error) {
	gt := GatewayType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch gt {
	case GatewayEway, GatewayPayflowPro, GatewayTwoCheckout, GatewayBitPay,
		GatewayPagSeguro, GatewayPayPalStandard, GatewayPayza, GatewaySkrill:
		return gt, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownGatewayType, s)
}

// Slug returns the URL form of the gateway type, e.g. "paypal-standard"
func (g GatewayType) Slug() string {
	return strings.ToLower(strings.ReplaceAll(string(g), "_", "-"))
}

// TransactionStatus is the canonical status every gateway response is normalized into
type TransactionStatus string

const (
	StatusApproved TransactionStatus = "approved"
	StatusDeclined TransactionStatus = "declined"
	StatusVoid     TransactionStatus = "void"
	StatusPending  TransactionStatus = "pending"
	StatusError    TransactionStatus = "error"
	StatusRefunded TransactionStatus = "refunded"
	StatusReturned TransactionStatus = "returned"
)

// Valid reports whether s is one of the canonical statuses
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusVoid, StatusPending,
		StatusError, StatusRefunded, StatusReturned:
		return true
	}
	return false
}

// TransactionResult is the normalized outcome of a gateway call
type TransactionResult struct {
	Status              TransactionStatus `json:"status"`
	ReferenceID         string            `json:"referenceId,omitempty"`
	TransactionID       string            `json:"transactionId,omitempty"`
	ParentTransactionID string            `json:"parentTransactionId,omitempty"`
	Message             string            `json:"message,omitempty"`

	// Populated from redirect callbacks
	ClientID string              `json:"clientId,omitempty"`
	Amount   decimal.Decimal     `json:"amount"`
	Currency string              `json:"currency,omitempty"`
	Invoices []InvoiceAllocation `json:"invoices,omitempty"`
}

// Relabel replaces an approved status with the given one. Refund and void
// responses from several processors only report generic approval.
func (r *TransactionResult) Relabel(status TransactionStatus) {
	if r != nil && r.Status == StatusApproved {
		r.Status = status
	}
}

// InvoiceAllocation tags part of a payment with the invoice it settles
type InvoiceAllocation struct {
	ID     int64           `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

// SumAllocations totals the allocated amounts
func SumAllocations(invoices []InvoiceAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Amount)
	}
	return total
}

// Address represents a billing address
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Card holds card holder and card data for merchant gateways
type Card struct {
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Number       string  `json:"number" binding:"required"`
	Expiry       string  `json:"expiry" binding:"required"` // yyyymm
	SecurityCode string  `json:"securityCode,omitempty"`
	Email        string  `json:"email,omitempty"`
	Address      Address `json:"address"`
}

// ExpiryMonth returns the two digit month of a yyyymm expiry
func (c Card) ExpiryMonth() (string, error) {
	if len(c.Expiry) != 6 {
		return "", ErrInvalidCardExpiry
	}
	return c.Expiry[4:6], nil
}

// ExpiryYear returns the four digit year of a yyyymm expiry
func (c Card) ExpiryYear() (string, error) {
	if len(c.Expiry) != 6 {
		return "", ErrInvalidCardExpiry
	}
	return c.Expiry[0:4], nil
}

// LastFour returns the last four digits of the card number
func (c Card) LastFour() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// CardCharge is a charge request against a merchant gateway
type CardCharge struct {
	Card        Card                `json:"card"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency"`
	Invoices    []InvoiceAllocation `json:"invoices,omitempty"`
	Description string              `json:"description,omitempty"`
}

// Validate checks the amount and the invoice allocation total
func (c *CardCharge) Validate() error {
	return ValidateAmount(c.Amount, c.Invoices)
}

// Contact is the payer for redirect gateways
type Contact struct {
	ClientID  string  `json:"clientId" binding:"required"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone,omitempty"`
	Company   string  `json:"company,omitempty"`
	Address   Address `json:"address"`
}

// FullName joins the first and last name
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ValidateAmount checks a payment amount against its invoice allocations
func ValidateAmount(amount decimal.Decimal, invoices []InvoiceAllocation) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(invoices) > 0 && !SumAllocations(invoices).Equal(amount) {
		return ErrInvoiceSumMismatch
	}
	return nil
}
