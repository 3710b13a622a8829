package models

import "github.com/shopspring/decimal"

// ChargeCardRequest represents a request to charge or authorize a card
type ChargeCardRequest struct {
	Card        Card                `json:"card"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency" binding:"required"`
	Invoices    []InvoiceAllocation `json:"invoices"`
	Description string              `json:"description"`
}

// ToCardCharge converts the request into a charge
func (r *ChargeCardRequest) ToCardCharge() *CardCharge {
	return &CardCharge{
		Card:        r.Card,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Invoices:    r.Invoices,
		Description: r.Description,
	}
}

// TransactionActionRequest represents a capture, void or refund of an earlier transaction
type TransactionActionRequest struct {
	ReferenceID   string              `json:"referenceId"`
	TransactionID string              `json:"transactionId" binding:"required"`
	Amount        decimal.NullDecimal `json:"amount"`
	Currency      string              `json:"currency"`
	Invoices      []InvoiceAllocation `json:"invoices"`
	Notes         string              `json:"notes"`
}

// BuildProcessRequest represents a request for the payer redirect form
type BuildProcessRequest struct {
	Contact     Contact             `json:"contact"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency" binding:"required"`
	Invoices    []InvoiceAllocation `json:"invoices"`
	Description string              `json:"description"`
	ReturnURL   string              `json:"returnUrl"`
	CancelURL   string              `json:"cancelUrl"`
}

// FormField is one hidden input of a redirect form
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProcessFormResponse describes where and how to send the payer
type ProcessFormResponse struct {
	Method string      `json:"method"`
	Action string      `json:"action"`
	Fields []FormField `json:"fields"`
	HTML   string      `json:"html"`
}

// UpdateSettingsRequest represents a request to save gateway settings
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" binding:"required"`
}

// SettingsResponse represents stored gateway settings with encrypted values masked
type SettingsResponse struct {
	GatewayType GatewayType       `json:"gatewayType"`
	Settings    map[string]string `json:"settings"`
}

// GatewayInfoResponse represents the static description of a gateway
type GatewayInfoResponse struct {
	Type              GatewayType `json:"type"`
	Slug              string      `json:"slug"`
	Name              string      `json:"name"`
	Version           string      `json:"version"`
	Authors           []string    `json:"authors"`
	Kind              string      `json:"kind"`
	Currencies        []string    `json:"currencies"`
	EncryptableFields []string    `json:"encryptableFields"`
}

// ValidationErrorResponse carries field-keyed validation messages
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
