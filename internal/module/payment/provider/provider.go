package provider

import (
	"context"
	"time"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
	apperrors "github.com/blogauto/server/internal/shared/errors"
)

// Processor owns exactly one provider's HTTP protocol and its status
// mapping table. Implementations translate the normalized request into
// a provider call and the provider's response back into a normalized
// Transaction; provider-specific strings never leave the adapter.
type Processor interface {
	// Name returns the provider name.
	Name() string

	// CreatePayment submits a new payment and returns the pending
	// transaction with the provider's checkout URL.
	CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.Transaction, error)

	// GetStatus fetches the current state of a transaction.
	GetStatus(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// Refund refunds a captured payment. A nil amount means a full
	// refund. The refund currency is always the original transaction's
	// currency.
	Refund(ctx context.Context, transactionID string, amount *money.Amount) (*domain.Transaction, error)

	// ListTransactions fetches recent transactions from the provider.
	ListTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error)
}

// RetryPolicy retries transient failures (HTTP 429, 5xx, network
// errors) with exponential backoff. Non-transient errors fail
// immediately.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is 3 retries starting at 2s (2s, 4s, 8s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}
}

// Do runs op, retrying transient errors up to MaxRetries times. The
// backoff sleep aborts promptly when ctx is cancelled.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	delay := p.BaseDelay
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !apperrors.IsTransient(err) || attempt >= p.MaxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
