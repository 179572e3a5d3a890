package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogauto/server/internal/module/payment/domain"
	apperrors "github.com/blogauto/server/internal/shared/errors"
)

// newPayPalTestProcessor points the processor at a fake API that also
// serves the OAuth token endpoint.
func newPayPalTestProcessor(t *testing.T, handler http.HandlerFunc) *PayPalProcessor {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewPayPalProcessor(&PayPalConfig{
		ClientID: "client-id",
		Secret:   "client-secret",
		BaseURL:  srv.URL,
		Timeout:  5 * time.Second,
		Retry:    RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond},
		Enabled:  true,
	})
}

func paypalOrderJSON(id, status string) map[string]any {
	return map[string]any{
		"id":          id,
		"status":      status,
		"create_time": "2026-08-29T10:00:00Z",
		"purchase_units": []map[string]any{{
			"amount": map[string]any{"currency_code": "JPY", "value": "2500"},
		}},
		"links": []map[string]any{
			{"href": "https://api.example.com/v2/checkout/orders/" + id, "rel": "self"},
			{"href": "https://www.paypal.com/checkoutnow?token=" + id, "rel": "approve"},
		},
	}
}

func TestPayPal_CreatePayment(t *testing.T) {
	var gotBody map[string]any
	var gotRequestID string
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		gotRequestID = r.Header.Get("PayPal-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(paypalOrderJSON("ORDER-1", "CREATED"))
	})

	txn, err := p.CreatePayment(context.Background(), &domain.PaymentRequest{
		Amount:        mustAmount(t, "2500", "JPY"),
		Currency:      "JPY",
		Description:   "Annual plan",
		CustomerEmail: "hanako@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "CAPTURE", gotBody["intent"])
	assert.NotEmpty(t, gotRequestID, "writes must carry an idempotency key")
	units := gotBody["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "JPY", amount["currency_code"])
	assert.Equal(t, "2500", amount["value"])

	assert.Equal(t, "ORDER-1", txn.TransactionID)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.Equal(t, "https://www.paypal.com/checkoutnow?token=ORDER-1", txn.PaymentURL)
	assert.Equal(t, "2500", txn.Amount.String())
	assert.Equal(t, "JPY", txn.Currency)
}

func TestPayPal_GetStatusCompleted(t *testing.T) {
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders/ORDER-2", r.URL.Path)
		json.NewEncoder(w).Encode(paypalOrderJSON("ORDER-2", "COMPLETED"))
	})

	txn, err := p.GetStatus(context.Background(), "ORDER-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, txn.Status)
	assert.Empty(t, txn.PaymentURL)
}

func TestPayPal_RefundUsesCaptureCurrency(t *testing.T) {
	var refundBody map[string]any
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			order := paypalOrderJSON("ORDER-3", "COMPLETED")
			order["purchase_units"] = []map[string]any{{
				"amount": map[string]any{"currency_code": "USD", "value": "25.00"},
				"payments": map[string]any{
					"captures": []map[string]any{{
						"id":     "CAP-3",
						"status": "COMPLETED",
						"amount": map[string]any{"currency_code": "USD", "value": "25.00"},
					}},
				},
			}}
			json.NewEncoder(w).Encode(order)
		case r.URL.Path == "/v2/payments/captures/CAP-3/refund":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&refundBody))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"id":          "REFUND-3",
				"status":      "COMPLETED",
				"amount":      map[string]any{"currency_code": "USD", "value": "10.00"},
				"create_time": "2026-08-29T11:00:00Z",
			})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	amt := mustAmount(t, "10.00", "USD")
	txn, err := p.Refund(context.Background(), "ORDER-3", &amt)
	require.NoError(t, err)

	// The refund is denominated in the capture's currency, not a
	// hardcoded one.
	reqAmount := refundBody["amount"].(map[string]any)
	assert.Equal(t, "USD", reqAmount["currency_code"])
	assert.Equal(t, "10.00", reqAmount["value"])

	assert.Equal(t, "REFUND-3", txn.TransactionID)
	assert.Equal(t, domain.StatusRefunded, txn.Status)
	assert.Equal(t, "USD", txn.Currency)
	assert.Equal(t, "10.00", txn.Amount.String())
}

func TestPayPal_RefundWithoutCaptureRejected(t *testing.T) {
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paypalOrderJSON("ORDER-4", "CREATED"))
	})

	_, err := p.Refund(context.Background(), "ORDER-4", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindProviderRejected, apperrors.KindOf(err))
}

func TestPayPal_RateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(paypalOrderJSON("ORDER-5", "CREATED"))
	})

	txn, err := p.GetStatus(context.Background(), "ORDER-5")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ORDER-5", txn.TransactionID)
}

func TestPayPal_ClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"name": "UNPROCESSABLE_ENTITY"})
	})

	_, err := p.CreatePayment(context.Background(), &domain.PaymentRequest{
		Amount:        mustAmount(t, "2500", "JPY"),
		Currency:      "JPY",
		CustomerEmail: "hanako@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, apperrors.KindProviderRejected, apperrors.KindOf(err))
}

func TestPayPal_UnmappedStatusPreservesRaw(t *testing.T) {
	p := newPayPalTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paypalOrderJSON("ORDER-6", "HELD_FOR_REVIEW"))
	})

	txn, err := p.GetStatus(context.Background(), "ORDER-6")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, txn.Status)
	assert.Contains(t, txn.ErrorMessage, "HELD_FOR_REVIEW")
	assert.Equal(t, "HELD_FOR_REVIEW", txn.RawResponse["status"])
}

func TestMapPayPalStatus(t *testing.T) {
	cases := []struct {
		status string
		want   domain.Status
		mapped bool
	}{
		{"CREATED", domain.StatusPending, true},
		{"SAVED", domain.StatusPending, true},
		{"APPROVED", domain.StatusPending, true},
		{"PAYER_ACTION_REQUIRED", domain.StatusPending, true},
		{"COMPLETED", domain.StatusSucceeded, true},
		{"VOIDED", domain.StatusCancelled, true},
		{"completed", domain.StatusSucceeded, true},
		{"SOMETHING_ELSE", domain.StatusError, false},
	}
	for _, tc := range cases {
		got, ok := MapPayPalStatus(tc.status)
		assert.Equal(t, tc.want, got, tc.status)
		assert.Equal(t, tc.mapped, ok, tc.status)
	}
}
