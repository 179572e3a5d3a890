package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogauto/server/internal/module/payment/money"
)

func validRequest(t *testing.T) *PaymentRequest {
	t.Helper()
	amount, err := money.Parse("1500", "JPY")
	require.NoError(t, err)
	return &PaymentRequest{
		Amount:        amount,
		Currency:      "JPY",
		Description:   "Premium plan",
		CustomerEmail: "a@b.com",
	}
}

func TestPaymentRequestValidate(t *testing.T) {
	assert.NoError(t, validRequest(t).Validate())

	t.Run("zero amount", func(t *testing.T) {
		req := validRequest(t)
		req.Amount = money.Amount{}
		assert.Error(t, req.Validate())
	})

	t.Run("lowercase currency", func(t *testing.T) {
		req := validRequest(t)
		req.Currency = "jpy"
		assert.Error(t, req.Validate())
	})

	t.Run("bad currency length", func(t *testing.T) {
		req := validRequest(t)
		req.Currency = "YEN2"
		assert.Error(t, req.Validate())
	})

	t.Run("missing email", func(t *testing.T) {
		req := validRequest(t)
		req.CustomerEmail = ""
		assert.Error(t, req.Validate())
	})

	t.Run("precision mismatch", func(t *testing.T) {
		req := validRequest(t)
		req.Amount = money.FromMinorUnits(1500, "USD")
		assert.Error(t, req.Validate())
	})
}

func TestParseProvider(t *testing.T) {
	for name, want := range map[string]Provider{
		"stripe": ProviderStripe,
		"PayPal": ProviderPayPal,
		" NONE ": ProviderNone,
	} {
		got, err := ParseProvider(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseProvider("square")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	for _, s := range []Status{StatusSucceeded, StatusCancelled, StatusRefunded, StatusError} {
		assert.True(t, s.IsTerminal(), string(s))
	}
}

func TestTransactionJSONShape(t *testing.T) {
	amount, _ := money.Parse("20.00", "USD")
	txn := &Transaction{
		Provider:      ProviderStripe,
		TransactionID: "cs_test_123",
		Status:        StatusPending,
		Amount:        amount,
		Currency:      "USD",
		CreatedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		PaymentURL:    "https://checkout.stripe.com/c/pay/cs_test_123",
	}

	data, err := json.Marshal(txn)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "stripe", m["provider"])
	assert.Equal(t, "20.00", m["amount"])
	assert.Equal(t, "2025-03-01T12:00:00Z", m["created_at"])
	_, hasErr := m["error_message"]
	assert.False(t, hasErr, "error_message should be omitted when empty")

	var back Transaction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *txn, back)
}

func TestIsMock(t *testing.T) {
	txn := &Transaction{RawResponse: map[string]any{"mock": true}}
	assert.True(t, txn.IsMock())
	assert.False(t, (&Transaction{}).IsMock())
	assert.False(t, (&Transaction{RawResponse: map[string]any{"mock": "yes"}}).IsMock())
}
