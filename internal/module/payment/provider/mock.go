package provider

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
)

// mockBackend serves canned responses when external calls are disabled
// or credentials are absent. Responses are shape-identical to real
// ones; only rawResponse["mock"] reveals the difference, for
// diagnostics.
type mockBackend struct {
	provider domain.Provider
	payURL   func(id string) string
	seed     int64
	seq      atomic.Uint64
}

func newMockBackend(p domain.Provider, payURL func(id string) string) *mockBackend {
	return &mockBackend{provider: p, payURL: payURL, seed: time.Now().Unix()}
}

// nextID returns a deterministic synthetic transaction id. The time
// seed keeps ids distinct across processes, the counter within one.
func (m *mockBackend) nextID() string {
	return fmt.Sprintf("mock_%s_%d%04d", m.provider, m.seed, m.seq.Add(1))
}

func (m *mockBackend) createPayment(req *domain.PaymentRequest) *domain.Transaction {
	id := m.nextID()
	return &domain.Transaction{
		Provider:      m.provider,
		TransactionID: id,
		Status:        domain.StatusPending,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CreatedAt:     time.Now().UTC(),
		PaymentURL:    m.payURL(id),
		RawResponse: map[string]any{
			"mock":           true,
			"transaction_id": id,
			"description":    req.Description,
		},
	}
}

func (m *mockBackend) getStatus(transactionID string) *domain.Transaction {
	return &domain.Transaction{
		Provider:      m.provider,
		TransactionID: transactionID,
		Status:        domain.StatusSucceeded,
		Amount:        money.FromMinorUnits(1000, "JPY"),
		Currency:      "JPY",
		CreatedAt:     time.Now().UTC(),
		RawResponse:   map[string]any{"mock": true, "transaction_id": transactionID},
	}
}

func (m *mockBackend) refund(transactionID string, amount *money.Amount) *domain.Transaction {
	refunded := money.FromMinorUnits(1000, "JPY")
	if amount != nil {
		refunded = *amount
	}
	return &domain.Transaction{
		Provider:      m.provider,
		TransactionID: "refund_" + transactionID,
		Status:        domain.StatusRefunded,
		Amount:        refunded,
		Currency:      "JPY",
		CreatedAt:     time.Now().UTC(),
		RawResponse:   map[string]any{"mock": true, "refund_of": transactionID},
	}
}

func (m *mockBackend) listTransactions(limit int) []*domain.Transaction {
	n := limit
	if n > 5 {
		n = 5
	}
	txns := make([]*domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txns = append(txns, &domain.Transaction{
			Provider:      m.provider,
			TransactionID: fmt.Sprintf("mock_%s_hist_%d", m.provider, i),
			Status:        domain.StatusSucceeded,
			Amount:        money.FromMinorUnits(int64(1000+i*100), "JPY"),
			Currency:      "JPY",
			CreatedAt:     time.Now().UTC(),
			RawResponse:   map[string]any{"mock": true},
		})
	}
	return txns
}
