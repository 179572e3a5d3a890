package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/blogauto/server/internal/module/payment/money"
)

// Provider identifies a payment provider.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
	ProviderNone   Provider = "none"
)

// ParseProvider converts a user-supplied name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stripe":
		return ProviderStripe, nil
	case "paypal":
		return ProviderPayPal, nil
	case "none":
		return ProviderNone, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", name)
	}
}

// Valid reports whether the provider is a known enum value.
func (p Provider) Valid() bool {
	return p == ProviderStripe || p == ProviderPayPal || p == ProviderNone
}

// Status is the normalized payment status shared by all providers.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
	StatusError     Status = "error"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusCancelled || s == StatusRefunded || s == StatusError
}

// IsError returns true if the status reports a failure.
func (s Status) IsError() bool { return s == StatusError }

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// LineItem is an optional itemized entry on a payment request.
type LineItem struct {
	Name       string       `json:"name"`
	Quantity   int64        `json:"quantity"`
	UnitAmount money.Amount `json:"unit_amount"`
}

// PaymentRequest is the provider-agnostic input to CreatePayment. It is
// built once by the caller and consumed once by a processor.
type PaymentRequest struct {
	Amount        money.Amount      `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	CustomerEmail string            `json:"customer_email"`
	CustomerName  string            `json:"customer_name,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Items         []LineItem        `json:"items,omitempty"`
	ReturnURL     string            `json:"return_url,omitempty"`
	CancelURL     string            `json:"cancel_url,omitempty"`
}

// Validate enforces the request invariants before any network call:
// a strictly positive amount, an uppercase ISO 4217 currency code and a
// customer email.
func (r *PaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if !currencyPattern.MatchString(r.Currency) {
		return fmt.Errorf("currency must be a three-letter uppercase ISO 4217 code, got %q", r.Currency)
	}
	if r.Amount.Exponent() != money.Exponent(r.Currency) {
		return fmt.Errorf("amount precision does not match currency %s", r.Currency)
	}
	if r.CustomerEmail == "" {
		return fmt.Errorf("customer email is required")
	}
	return nil
}

// Transaction is the persisted record of one provider interaction.
// Records are append-only: a follow-up operation such as a refund
// produces a new Transaction, it never mutates a saved one.
type Transaction struct {
	Provider      Provider       `json:"provider"`
	TransactionID string         `json:"transaction_id"`
	Status        Status         `json:"status"`
	Amount        money.Amount   `json:"amount"`
	Currency      string         `json:"currency"`
	CreatedAt     time.Time      `json:"created_at"`
	PaymentURL    string         `json:"payment_url,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	RawResponse   map[string]any `json:"raw_response,omitempty"`
}

// IsMock reports whether the transaction came from a mock-mode
// processor. Only diagnostics should branch on this.
func (t *Transaction) IsMock() bool {
	if t.RawResponse == nil {
		return false
	}
	mock, ok := t.RawResponse["mock"].(bool)
	return ok && mock
}
