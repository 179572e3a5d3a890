package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
)

func mustAmount(t *testing.T, value, currency string) money.Amount {
	t.Helper()
	amt, err := money.Parse(value, currency)
	require.NoError(t, err)
	return amt
}

func TestStripeMock_CreatePayment(t *testing.T) {
	p := NewStripeProcessor(&StripeConfig{Retry: RetryPolicy{}})

	txn, err := p.CreatePayment(context.Background(), &domain.PaymentRequest{
		Amount:        mustAmount(t, "1500", "JPY"),
		Currency:      "JPY",
		Description:   "Premium plan",
		CustomerEmail: "taro@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderStripe, txn.Provider)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.True(t, strings.HasPrefix(txn.TransactionID, "mock_stripe_"), "got %s", txn.TransactionID)
	assert.True(t, strings.HasPrefix(txn.PaymentURL, "https://checkout.stripe.com/mock/"), "got %s", txn.PaymentURL)
	assert.Equal(t, "1500", txn.Amount.String())
	assert.Equal(t, "JPY", txn.Currency)
	assert.True(t, txn.IsMock())
}

func TestPayPalMock_CreatePayment(t *testing.T) {
	p := NewPayPalProcessor(&PayPalConfig{Retry: RetryPolicy{}})

	txn, err := p.CreatePayment(context.Background(), &domain.PaymentRequest{
		Amount:        mustAmount(t, "2500", "JPY"),
		Currency:      "JPY",
		Description:   "Annual plan",
		CustomerEmail: "hanako@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderPayPal, txn.Provider)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.True(t, strings.HasPrefix(txn.TransactionID, "mock_paypal_"), "got %s", txn.TransactionID)
	assert.True(t, strings.HasPrefix(txn.PaymentURL, "https://www.paypal.com/checkoutnow?token="), "got %s", txn.PaymentURL)
	assert.True(t, txn.IsMock())
}

func TestMock_TransactionIDsAreUnique(t *testing.T) {
	p := NewStripeProcessor(&StripeConfig{})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		txn, err := p.CreatePayment(context.Background(), &domain.PaymentRequest{
			Amount:        mustAmount(t, "1000", "JPY"),
			Currency:      "JPY",
			CustomerEmail: "taro@example.com",
		})
		require.NoError(t, err)
		assert.False(t, seen[txn.TransactionID], "duplicate id %s", txn.TransactionID)
		seen[txn.TransactionID] = true
	}
}

func TestMock_GetStatus(t *testing.T) {
	p := NewPayPalProcessor(&PayPalConfig{})

	txn, err := p.GetStatus(context.Background(), "mock_paypal_123")
	require.NoError(t, err)
	assert.Equal(t, "mock_paypal_123", txn.TransactionID)
	assert.Equal(t, domain.StatusSucceeded, txn.Status)
	assert.True(t, txn.IsMock())
}

func TestMock_Refund(t *testing.T) {
	p := NewStripeProcessor(&StripeConfig{})

	amt := mustAmount(t, "500", "JPY")
	txn, err := p.Refund(context.Background(), "mock_stripe_42", &amt)
	require.NoError(t, err)
	assert.Equal(t, "refund_mock_stripe_42", txn.TransactionID)
	assert.Equal(t, domain.StatusRefunded, txn.Status)
	assert.Equal(t, "500", txn.Amount.String())
}

func TestMock_ListTransactionsCapped(t *testing.T) {
	p := NewStripeProcessor(&StripeConfig{})

	txns, err := p.ListTransactions(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, txns, 5, "mock history is capped at five entries")
	assert.Equal(t, "1000", txns[0].Amount.String())
	assert.Equal(t, "1400", txns[4].Amount.String())
}
