package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an expected payment failure. Kinds, not types: every
// public operation reports failures as a Transaction with an error
// status, and the kind decides the synthetic transaction id and whether
// the call is worth retrying.
type Kind string

const (
	KindRateLimitExceeded   Kind = "rate_limit_exceeded"
	KindProcessorInitFailed Kind = "init_failed"
	KindProviderRejected    Kind = "provider_rejected"
	KindProviderTransient   Kind = "provider_transient"
	KindProviderUnmapped    Kind = "provider_unmapped"
	KindValidationFailed    Kind = "validation_failed"
)

// PaymentError carries a failure kind alongside the provider it came
// from and the underlying cause.
type PaymentError struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *PaymentError) Unwrap() error { return e.Err }

// RateLimited reports an exhausted per-provider call quota.
func RateLimited(provider string) *PaymentError {
	return &PaymentError{Kind: KindRateLimitExceeded, Provider: provider, Message: "rate limit exceeded"}
}

// InitFailed reports a processor that could not be constructed.
func InitFailed(provider string, err error) *PaymentError {
	return &PaymentError{Kind: KindProcessorInitFailed, Provider: provider, Message: "provider initialization failed", Err: err}
}

// Rejected reports a non-retryable provider refusal (4xx other than 429).
func Rejected(provider, message string, err error) *PaymentError {
	return &PaymentError{Kind: KindProviderRejected, Provider: provider, Message: message, Err: err}
}

// Transient reports a retryable condition: HTTP 429, a 5xx response or
// a network failure.
func Transient(provider, message string, err error) *PaymentError {
	return &PaymentError{Kind: KindProviderTransient, Provider: provider, Message: message, Err: err}
}

// Unmapped reports a successful call whose raw status string is not in
// the provider's mapping table.
func Unmapped(provider, rawStatus string) *PaymentError {
	return &PaymentError{Kind: KindProviderUnmapped, Provider: provider, Message: fmt.Sprintf("unmapped provider status %q", rawStatus)}
}

// Validation reports a request invariant violation caught before any
// network call.
func Validation(message string, err error) *PaymentError {
	return &PaymentError{Kind: KindValidationFailed, Message: message, Err: err}
}

// KindOf extracts the failure kind, or "" for errors outside the
// taxonomy.
func KindOf(err error) Kind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsTransient reports whether the error is worth retrying with backoff.
func IsTransient(err error) bool {
	return KindOf(err) == KindProviderTransient
}
