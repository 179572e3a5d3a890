package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/blogauto/server/internal/module/auth"
	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
	"github.com/blogauto/server/internal/module/payment/provider"
	"github.com/blogauto/server/internal/module/payment/ratelimit"
	"github.com/blogauto/server/internal/module/payment/store"
	"github.com/blogauto/server/internal/shared/config"
	apperrors "github.com/blogauto/server/internal/shared/errors"
)

// Synthetic transaction ids for calls that never reached a provider.
const (
	txnIDRateLimited      = "rate_limit_exceeded"
	txnIDInitFailed       = "init_failed"
	txnIDValidationFailed = "validation_failed"
	txnIDError            = "error"
)

// Manager orchestrates payment operations across providers: request
// validation, rate limiting, circuit breaking, dispatch and
// persistence. Failures surface as error-status transactions so every
// call yields a record the caller can inspect uniformly.
type Manager struct {
	registry *Registry
	store    store.Store
	limiter  ratelimit.Limiter
	metrics  *Metrics
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[domain.Provider]*gobreaker.CircuitBreaker[*domain.Transaction]
}

// NewManager wires a manager from its dependencies.
func NewManager(registry *Registry, st store.Store, limiter ratelimit.Limiter, metrics *Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		store:    st,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
		breakers: make(map[domain.Provider]*gobreaker.CircuitBreaker[*domain.Transaction]),
	}
}

// BuildRegistry constructs the processors for all configured
// providers. With external calls disabled, or enabled but credentials
// absent and mock mode on, a provider gets a mock processor;
// enabled without credentials and without mock mode records an
// initialization failure instead.
func BuildRegistry(cfg *config.PaymentsConfig, creds auth.CredentialProvider) *Registry {
	reg := NewRegistry()
	retry := provider.RetryPolicy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay}

	stripeCred, stripeOK := creds.Lookup(string(domain.ProviderStripe))
	if cfg.EnableExternal && !stripeOK && !cfg.MockEnabled {
		reg.RegisterFailure(domain.ProviderStripe,
			apperrors.InitFailed(string(domain.ProviderStripe), errors.New("credentials not configured")))
	} else {
		reg.Register(domain.ProviderStripe, provider.NewStripeProcessor(&provider.StripeConfig{
			APIKey:  stripeCred.APIKey,
			Timeout: cfg.HTTPTimeout,
			Retry:   retry,
			Enabled: cfg.EnableExternal && stripeOK,
		}))
	}

	paypalCred, paypalOK := creds.Lookup(string(domain.ProviderPayPal))
	if cfg.EnableExternal && !paypalOK && !cfg.MockEnabled {
		reg.RegisterFailure(domain.ProviderPayPal,
			apperrors.InitFailed(string(domain.ProviderPayPal), errors.New("credentials not configured")))
	} else {
		reg.Register(domain.ProviderPayPal, provider.NewPayPalProcessor(&provider.PayPalConfig{
			ClientID: paypalCred.APIKey,
			Secret:   paypalCred.APISecret,
			Sandbox:  cfg.Providers[string(domain.ProviderPayPal)].Sandbox,
			Timeout:  cfg.HTTPTimeout,
			Retry:    retry,
			Enabled:  cfg.EnableExternal && paypalOK,
		}))
	}

	return reg
}

// CreatePayment validates the request, charges it against the
// provider's quota, dispatches it and persists the outcome. Calls
// refused before reaching the provider are returned as error
// transactions but not persisted.
func (m *Manager) CreatePayment(ctx context.Context, p domain.Provider, req *domain.PaymentRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		m.logger.Warn("payment request rejected",
			zap.String("provider", string(p)), zap.Error(err))
		txn := m.errorTransaction(p, txnIDValidationFailed, err.Error(), req)
		m.countOutcome(p, txn.Status)
		return txn, nil
	}

	txn, dispatched := m.dispatch(ctx, p, "create", req, func(proc provider.Processor) (*domain.Transaction, error) {
		return proc.CreatePayment(ctx, req)
	})
	if !dispatched {
		m.countOutcome(p, txn.Status)
		return txn, nil
	}
	return m.persist(ctx, p, txn)
}

// GetStatus fetches the current state of a transaction. Reads are not
// charged against the quota and are not persisted.
func (m *Manager) GetStatus(ctx context.Context, p domain.Provider, transactionID string) (*domain.Transaction, error) {
	proc, err := m.registry.Get(p)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ProviderCalls.WithLabelValues(string(p), "status").Inc()
	}
	return proc.GetStatus(ctx, transactionID)
}

// Refund refunds a transaction and persists the outcome as a new
// record. A nil amount refunds the full charge.
func (m *Manager) Refund(ctx context.Context, p domain.Provider, transactionID string, amount *money.Amount) (*domain.Transaction, error) {
	txn, dispatched := m.dispatch(ctx, p, "refund", nil, func(proc provider.Processor) (*domain.Transaction, error) {
		return proc.Refund(ctx, transactionID, amount)
	})
	if !dispatched {
		m.countOutcome(p, txn.Status)
		return txn, nil
	}
	return m.persist(ctx, p, txn)
}

// ListTransactions returns locally persisted transactions, newest
// first.
func (m *Manager) ListTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	return m.store.List(ctx, limit)
}

// Providers returns the providers the manager can dispatch to, sorted
// by name.
func (m *Manager) Providers() []domain.Provider {
	return m.registry.Providers()
}

// dispatch runs op through the rate limiter and circuit breaker. The
// second return reports whether the call reached the processor: when
// false the transaction is synthetic and must not be persisted.
func (m *Manager) dispatch(ctx context.Context, p domain.Provider, operation string, req *domain.PaymentRequest, op func(provider.Processor) (*domain.Transaction, error)) (*domain.Transaction, bool) {
	allowed, err := m.limiter.Check(ctx, string(p))
	if err != nil {
		m.logger.Error("rate limiter check failed",
			zap.String("provider", string(p)), zap.Error(err))
		return m.errorTransaction(p, txnIDError, "rate limiter unavailable: "+err.Error(), req), false
	}
	if !allowed {
		if m.metrics != nil {
			m.metrics.RateLimited.WithLabelValues(string(p)).Inc()
		}
		m.logger.Warn("provider quota exhausted", zap.String("provider", string(p)))
		return m.errorTransaction(p, txnIDRateLimited, apperrors.RateLimited(string(p)).Error(), req), false
	}

	proc, err := m.registry.Get(p)
	if err != nil {
		m.logger.Error("processor unavailable",
			zap.String("provider", string(p)), zap.Error(err))
		return m.errorTransaction(p, txnIDInitFailed, err.Error(), req), false
	}

	txn, err := m.breaker(p).Execute(func() (*domain.Transaction, error) {
		if recordErr := m.limiter.Record(ctx, string(p)); recordErr != nil {
			m.logger.Error("rate limiter record failed",
				zap.String("provider", string(p)), zap.Error(recordErr))
		}
		if m.metrics != nil {
			m.metrics.ProviderCalls.WithLabelValues(string(p), operation).Inc()
		}
		return op(proc)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		m.logger.Warn("circuit breaker open", zap.String("provider", string(p)))
		return m.errorTransaction(p, txnIDError, "provider temporarily unavailable", req), false
	}
	if err != nil {
		m.logger.Error("provider call failed",
			zap.String("provider", string(p)),
			zap.String("operation", operation),
			zap.Error(err))
		return m.errorTransaction(p, txnIDError, err.Error(), req), true
	}
	return txn, true
}

// persist saves the outcome. A failed save is surfaced to the caller
// alongside the transaction: the provider call happened even if the
// record did not land.
func (m *Manager) persist(ctx context.Context, p domain.Provider, txn *domain.Transaction) (*domain.Transaction, error) {
	m.countOutcome(p, txn.Status)
	if err := m.store.Save(ctx, txn); err != nil {
		if m.metrics != nil {
			m.metrics.StoreFailures.Inc()
		}
		m.logger.Error("transaction save failed",
			zap.String("provider", string(p)),
			zap.String("transaction_id", txn.TransactionID),
			zap.Error(err))
		return txn, fmt.Errorf("save transaction %s: %w", txn.TransactionID, err)
	}
	return txn, nil
}

// breaker returns the provider's circuit breaker, creating it on first
// use. Only transient failures count toward tripping; provider
// rejections mean the provider is healthy.
func (m *Manager) breaker(p domain.Provider) *gobreaker.CircuitBreaker[*domain.Transaction] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[p]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*domain.Transaction](gobreaker.Settings{
		Name:    string(p),
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	m.breakers[p] = cb
	return cb
}

// errorTransaction builds the synthetic record for a refused or failed
// call. The request's amount is carried when available so the record
// still says what was attempted.
func (m *Manager) errorTransaction(p domain.Provider, id, message string, req *domain.PaymentRequest) *domain.Transaction {
	txn := &domain.Transaction{
		Provider:      p,
		TransactionID: id,
		Status:        domain.StatusError,
		CreatedAt:     time.Now().UTC(),
		ErrorMessage:  message,
	}
	if req != nil {
		txn.Amount = req.Amount
		txn.Currency = req.Currency
	}
	return txn
}

// countOutcome records one transaction outcome. Every code path counts
// exactly once: refused calls at their return site, dispatched calls in
// persist.
func (m *Manager) countOutcome(p domain.Provider, status domain.Status) {
	if m.metrics != nil {
		m.metrics.PaymentsTotal.WithLabelValues(string(p), string(status)).Inc()
	}
}

// Summary aggregates the persisted transaction history.
type Summary struct {
	TotalTransactions     int                     `json:"total_transactions"`
	Providers             map[domain.Provider]int `json:"providers"`
	StatusBreakdown       map[domain.Status]int   `json:"status_breakdown"`
	TotalAmountByCurrency map[string]string       `json:"total_amount_by_currency"`
	RecentTransactions    []*domain.Transaction   `json:"recent_transactions"`
}

// GetPaymentSummary aggregates the local history: counts by provider
// and status, succeeded volume by currency and the five most recent
// records.
func (m *Manager) GetPaymentSummary(ctx context.Context) (*Summary, error) {
	txns, err := m.store.List(ctx, 1000)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	summary := &Summary{
		TotalTransactions:     len(txns),
		Providers:             make(map[domain.Provider]int),
		StatusBreakdown:       make(map[domain.Status]int),
		TotalAmountByCurrency: make(map[string]string),
	}
	totals := make(map[string]money.Amount)
	for _, txn := range txns {
		summary.Providers[txn.Provider]++
		summary.StatusBreakdown[txn.Status]++
		if txn.Status != domain.StatusSucceeded || txn.Currency == "" {
			continue
		}
		if current, ok := totals[txn.Currency]; ok {
			sum, err := current.Add(txn.Amount)
			if err != nil {
				m.logger.Warn("skipping amount with mismatched precision",
					zap.String("transaction_id", txn.TransactionID),
					zap.String("currency", txn.Currency))
				continue
			}
			totals[txn.Currency] = sum
		} else {
			totals[txn.Currency] = txn.Amount
		}
	}
	for currency, amount := range totals {
		summary.TotalAmountByCurrency[currency] = amount.String()
	}

	recent := txns
	if len(recent) > 5 {
		recent = recent[:5]
	}
	summary.RecentTransactions = recent
	return summary, nil
}
