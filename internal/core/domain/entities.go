// Package domain contains the core business entities for the charge gateway.
// This is the innermost layer - no dependency on transports or providers.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the canonical charge status. Every provider vocabulary is
// mapped into this fixed set.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps a raw provider status string into the canonical set.
// Matching is case-insensitive. This is the cross-provider superset used
// at the webhook boundary; each adapter additionally keeps its own table
// for the vocabulary its API actually speaks.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "approved", "completed", "success", "confirmed":
		return StatusPaid
	case "pending", "waiting_payment", "processing", "created", "in_process", "waiting":
		return StatusPending
	case "failed", "refused", "rejected", "error":
		return StatusFailed
	case "expired":
		return StatusExpired
	case "cancelled", "canceled", "refunded", "charged_back", "chargeback":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// DefaultPhone is used when the customer supplies no usable phone number.
// Some providers reject charges without one.
const DefaultPhone = "11987679080"

// DefaultDescription is used when the caller supplies no description.
const DefaultDescription = "Pagamento via PIX"

// ChargeRequest is a request to issue a PIX charge for one customer.
type ChargeRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	CPF         string          `json:"cpf"`
	Phone       string          `json:"phone"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Validate checks the request and normalizes the CPF and phone in place.
// It must pass before any provider is called.
func (r *ChargeRequest) Validate() error {
	if r.Name == "" || r.Email == "" || r.CPF == "" {
		return NewServiceError(ErrValidation,
			"name, email and cpf are required", "MISSING_FIELDS")
	}
	if !r.Amount.IsPositive() {
		return NewServiceError(ErrValidation,
			"amount must be greater than zero", "INVALID_AMOUNT")
	}
	cpf, err := NormalizeCPF(r.CPF)
	if err != nil {
		return err
	}
	r.CPF = cpf
	r.Phone = NormalizePhone(r.Phone)
	if r.Description == "" {
		r.Description = DefaultDescription
	}
	return nil
}

// NormalizeCPF strips formatting from a CPF and requires exactly 11 digits.
func NormalizeCPF(raw string) (string, error) {
	digits := onlyDigits(raw)
	if len(digits) != 11 {
		return "", NewServiceError(ErrValidation,
			"cpf must have 11 digits", "INVALID_CPF")
	}
	return digits, nil
}

// NormalizePhone strips formatting from a phone number. Numbers with fewer
// than 10 digits are replaced by DefaultPhone.
func NormalizePhone(raw string) string {
	digits := onlyDigits(raw)
	if len(digits) < 10 {
		return DefaultPhone
	}
	return digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Charge is the normalized result of issuing a PIX charge, whichever
// provider produced it.
type Charge struct {
	TransactionID string          `json:"transaction_id"`
	PixCode       string          `json:"pix_code"`
	QRCode        string          `json:"qr_code"`
	Status        Status          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Provider      string          `json:"provider"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StatusResult is the outcome of a status poll for one transaction.
type StatusResult struct {
	TransactionID string          `json:"transaction_id"`
	Status        Status          `json:"status"`
	Paid          bool            `json:"paid"`
	Amount        decimal.Decimal `json:"amount"`
	Provider      string          `json:"provider"`
}

// NotificationEvent is sent to the configured callback when a charge is
// created or changes state.
type NotificationEvent struct {
	Event         string          `json:"event"`
	TransactionID string          `json:"transaction_id"`
	Provider      string          `json:"provider"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     string          `json:"timestamp"`
}
