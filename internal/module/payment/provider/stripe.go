package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
	apperrors "github.com/blogauto/server/internal/shared/errors"
)

const stripeName = "stripe"

// StripeConfig holds Stripe processor configuration.
type StripeConfig struct {
	APIKey  string
	BaseURL string // override for tests; empty uses the live API host
	Timeout time.Duration
	Retry   RetryPolicy
	// Enabled selects real calls; when false the processor runs in
	// mock mode.
	Enabled bool
}

// StripeProcessor implements Processor on Stripe Checkout Sessions.
type StripeProcessor struct {
	api     *client.API
	retry   RetryPolicy
	enabled bool
	mock    *mockBackend
}

// NewStripeProcessor creates a Stripe processor. The SDK's own retries
// are disabled; the write-path policy in Retry owns all backoff.
func NewStripeProcessor(cfg *StripeConfig) *StripeProcessor {
	p := &StripeProcessor{
		retry:   cfg.Retry,
		enabled: cfg.Enabled && cfg.APIKey != "",
		mock: newMockBackend(domain.ProviderStripe, func(id string) string {
			return "https://checkout.stripe.com/mock/" + id
		}),
	}
	if !p.enabled {
		return p
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.APIKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	p.api = api
	return p
}

// Name returns the provider name.
func (p *StripeProcessor) Name() string { return stripeName }

// CreatePayment opens a Checkout Session for the request.
func (p *StripeProcessor) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.createPayment(req), nil
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(defaultURL(req.ReturnURL, "https://example.com/success")),
		CancelURL:          stripe.String(defaultURL(req.CancelURL, "https://example.com/cancel")),
		CustomerEmail:      stripe.String(req.CustomerEmail),
		ExpiresAt:          stripe.Int64(time.Now().Add(30 * time.Minute).Unix()),
		LineItems:          stripeLineItems(req),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var sess *stripe.CheckoutSession
	err := p.retry.Do(ctx, func() error {
		var err error
		sess, err = p.api.CheckoutSessions.New(params)
		return classifyStripeErr(err)
	})
	if err != nil {
		return nil, err
	}
	return p.sessionTransaction(sess), nil
}

// GetStatus retrieves a Checkout Session and normalizes its state.
func (p *StripeProcessor) GetStatus(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.getStatus(transactionID), nil
	}

	sess, err := p.getSession(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return p.sessionTransaction(sess), nil
}

// Refund resolves the session's payment intent and refunds it. A nil
// amount refunds the full charge.
func (p *StripeProcessor) Refund(ctx context.Context, transactionID string, amount *money.Amount) (*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.refund(transactionID, amount), nil
	}

	sess, err := p.getSession(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return nil, apperrors.Rejected(stripeName, "session has no payment intent to refund", nil)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
	}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripe.Int64(amount.MinorUnits())
	}

	var r *stripe.Refund
	err = p.retry.Do(ctx, func() error {
		var err error
		r, err = p.api.Refunds.New(params)
		return classifyStripeErr(err)
	})
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(string(r.Currency))
	return &domain.Transaction{
		Provider:      domain.ProviderStripe,
		TransactionID: r.ID,
		Status:        domain.StatusRefunded,
		Amount:        money.FromMinorUnits(r.Amount, currency),
		Currency:      currency,
		CreatedAt:     time.Unix(r.Created, 0).UTC(),
		RawResponse: map[string]any{
			"refund_id":      r.ID,
			"payment_intent": sess.PaymentIntent.ID,
			"status":         string(r.Status),
			"reason":         string(r.Reason),
		},
	}, nil
}

// ListTransactions lists recent Checkout Sessions.
func (p *StripeProcessor) ListTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.listTransactions(limit), nil
	}

	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var txns []*domain.Transaction
	err := p.retry.Do(ctx, func() error {
		txns = txns[:0]
		iter := p.api.CheckoutSessions.List(params)
		for iter.Next() {
			txns = append(txns, p.sessionTransaction(iter.CheckoutSession()))
			if len(txns) >= limit {
				break
			}
		}
		return classifyStripeErr(iter.Err())
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// getSession is an idempotent read, retried with the same policy.
func (p *StripeProcessor) getSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var sess *stripe.CheckoutSession
	err := p.retry.Do(ctx, func() error {
		var err error
		sess, err = p.api.CheckoutSessions.Get(id, params)
		return classifyStripeErr(err)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// sessionTransaction normalizes a Checkout Session. Unknown session
// states become an error transaction with the raw status preserved,
// never a dropped record.
func (p *StripeProcessor) sessionTransaction(sess *stripe.CheckoutSession) *domain.Transaction {
	currency := strings.ToUpper(string(sess.Currency))
	txn := &domain.Transaction{
		Provider:      domain.ProviderStripe,
		TransactionID: sess.ID,
		Amount:        money.FromMinorUnits(sess.AmountTotal, currency),
		Currency:      currency,
		CreatedAt:     time.Unix(sess.Created, 0).UTC(),
		RawResponse: map[string]any{
			"session_id":     sess.ID,
			"status":         string(sess.Status),
			"payment_status": string(sess.PaymentStatus),
		},
	}
	if sess.PaymentIntent != nil {
		txn.RawResponse["payment_intent"] = sess.PaymentIntent.ID
	}

	status, ok := MapStripeStatus(string(sess.Status), string(sess.PaymentStatus))
	txn.Status = status
	if !ok {
		txn.ErrorMessage = apperrors.Unmapped(stripeName, string(sess.Status)).Error()
		return txn
	}
	if status == domain.StatusPending {
		txn.PaymentURL = sess.URL
		txn.RawResponse["url"] = sess.URL
	}
	return txn
}

// MapStripeStatus translates a Checkout Session status pair into the
// normalized vocabulary. The second return is false for raw statuses
// outside the table; callers must then report an error status with the
// raw string preserved.
func MapStripeStatus(status, paymentStatus string) (domain.Status, bool) {
	switch status {
	case "open":
		return domain.StatusPending, true
	case "expired":
		return domain.StatusCancelled, true
	case "complete":
		switch paymentStatus {
		case "paid", "no_payment_required":
			return domain.StatusSucceeded, true
		case "unpaid":
			return domain.StatusPending, true
		default:
			return domain.StatusError, false
		}
	default:
		return domain.StatusError, false
	}
}

// classifyStripeErr sorts SDK errors into the retryable taxonomy:
// 429/5xx and transport failures are transient, other 4xx are caller
// errors and fail fast.
func classifyStripeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch {
		case serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500:
			return apperrors.Transient(stripeName, "stripe request failed", err)
		case serr.HTTPStatusCode >= 400:
			return apperrors.Rejected(stripeName, serr.Msg, err)
		}
	}
	// Anything unclassified is a transport-level failure.
	return apperrors.Transient(stripeName, "stripe request failed", err)
}

func stripeLineItems(req *domain.PaymentRequest) []*stripe.CheckoutSessionLineItemParams {
	if len(req.Items) > 0 {
		items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(item.Quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(item.UnitAmount.MinorUnits()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(item.Name),
					},
				},
			})
		}
		return items
	}

	name := req.Description
	if name == "" {
		name = "BlogAuto Service"
	}
	return []*stripe.CheckoutSessionLineItemParams{{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(req.Currency)),
			UnitAmount: stripe.Int64(req.Amount.MinorUnits()),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
	}}
}

func defaultURL(u, fallback string) string {
	if u == "" {
		return fallback
	}
	return u
}
