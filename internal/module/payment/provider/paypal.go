package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
	apperrors "github.com/blogauto/server/internal/shared/errors"
)

const paypalName = "paypal"

// PayPalConfig holds PayPal processor configuration.
type PayPalConfig struct {
	ClientID string
	Secret   string
	Sandbox  bool
	BaseURL  string // override for tests; empty derives from Sandbox
	Timeout  time.Duration
	Retry    RetryPolicy
	Enabled  bool
}

// PayPalProcessor implements Processor on the PayPal Orders v2 API.
// The OAuth token is fetched lazily and cached until expiry by the
// clientcredentials transport.
type PayPalProcessor struct {
	baseURL string
	hc      *http.Client
	retry   RetryPolicy
	enabled bool
	mock    *mockBackend
}

// NewPayPalProcessor creates a PayPal processor.
func NewPayPalProcessor(cfg *PayPalConfig) *PayPalProcessor {
	p := &PayPalProcessor{
		retry:   cfg.Retry,
		enabled: cfg.Enabled && cfg.ClientID != "" && cfg.Secret != "",
		mock: newMockBackend(domain.ProviderPayPal, func(id string) string {
			return "https://www.paypal.com/checkoutnow?token=" + id
		}),
	}
	if !p.enabled {
		return p
	}

	p.baseURL = cfg.BaseURL
	if p.baseURL == "" {
		if cfg.Sandbox {
			p.baseURL = "https://api.sandbox.paypal.com"
		} else {
			p.baseURL = "https://api.paypal.com"
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.Secret,
		TokenURL:     p.baseURL + "/v1/oauth2/token",
	}
	// The token endpoint inherits the same timeout as API calls.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	p.hc = cc.Client(tokenCtx)
	p.hc.Timeout = timeout
	return p
}

// Name returns the provider name.
func (p *PayPalProcessor) Name() string { return paypalName }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	CreateTime    string       `json:"create_time"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Amount   paypalAmount `json:"amount"`
		Payments *struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreatePayment creates a CAPTURE-intent order and returns the payer
// approval URL.
func (p *PayPalProcessor) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.createPayment(req), nil
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"description": req.Description,
			"amount": paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.String(),
			},
		}},
		"payment_source": map[string]any{
			"paypal": map[string]any{
				"experience_context": map[string]any{
					"brand_name":          "BlogAuto",
					"locale":              "ja-JP",
					"shipping_preference": "NO_SHIPPING",
					"user_action":         "PAY_NOW",
					"return_url":          defaultURL(req.ReturnURL, "https://example.com/success"),
					"cancel_url":          defaultURL(req.CancelURL, "https://example.com/cancel"),
				},
			},
		},
	}

	var order paypalOrder
	raw, err := p.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &order)
	if err != nil {
		return nil, err
	}
	return p.orderTransaction(&order, raw), nil
}

// GetStatus retrieves an order and normalizes its state.
func (p *PayPalProcessor) GetStatus(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.getStatus(transactionID), nil
	}

	var order paypalOrder
	raw, err := p.call(ctx, http.MethodGet, "/v2/checkout/orders/"+transactionID, nil, &order)
	if err != nil {
		return nil, err
	}
	return p.orderTransaction(&order, raw), nil
}

// Refund looks up the order's capture and refunds it in the capture's
// own currency. A nil amount refunds the full capture.
func (p *PayPalProcessor) Refund(ctx context.Context, transactionID string, amount *money.Amount) (*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.refund(transactionID, amount), nil
	}

	var order paypalOrder
	if _, err := p.call(ctx, http.MethodGet, "/v2/checkout/orders/"+transactionID, nil, &order); err != nil {
		return nil, err
	}
	capture := firstCapture(&order)
	if capture == nil {
		return nil, apperrors.Rejected(paypalName, "order has no capture to refund", nil)
	}

	var body map[string]any
	if amount != nil {
		body = map[string]any{
			"amount": paypalAmount{
				CurrencyCode: capture.Amount.CurrencyCode,
				Value:        amount.String(),
			},
		}
	}

	var refund struct {
		ID         string       `json:"id"`
		Status     string       `json:"status"`
		Amount     paypalAmount `json:"amount"`
		CreateTime string       `json:"create_time"`
	}
	raw, err := p.call(ctx, http.MethodPost, "/v2/payments/captures/"+capture.ID+"/refund", body, &refund)
	if err != nil {
		return nil, err
	}

	currency := refund.Amount.CurrencyCode
	if currency == "" {
		currency = capture.Amount.CurrencyCode
	}
	refunded, err := money.Infer(refund.Amount.Value)
	if err != nil {
		if amount != nil {
			refunded = *amount
		} else {
			refunded, _ = money.Infer(capture.Amount.Value)
		}
	}
	return &domain.Transaction{
		Provider:      domain.ProviderPayPal,
		TransactionID: refund.ID,
		Status:        domain.StatusRefunded,
		Amount:        refunded,
		Currency:      currency,
		CreatedAt:     parsePayPalTime(refund.CreateTime),
		RawResponse:   raw,
	}, nil
}

// ListTransactions fetches recent orders.
func (p *PayPalProcessor) ListTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if !p.enabled {
		return p.mock.listTransactions(limit), nil
	}

	var page struct {
		Orders []paypalOrder `json:"orders"`
	}
	path := fmt.Sprintf("/v2/checkout/orders?page_size=%d", limit)
	if _, err := p.call(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}

	txns := make([]*domain.Transaction, 0, len(page.Orders))
	for i := range page.Orders {
		if len(txns) >= limit {
			break
		}
		txns = append(txns, p.orderTransaction(&page.Orders[i], nil))
	}
	return txns, nil
}

// call performs a retried API request. Writes stay idempotent across
// retries through a PayPal-Request-Id generated once per call.
func (p *PayPalProcessor) call(ctx context.Context, method, path string, body any, out any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, apperrors.Rejected(paypalName, "encode request", err)
		}
	}
	requestID := uuid.NewString()

	var raw map[string]any
	err := p.retry.Do(ctx, func() error {
		var rdr io.Reader
		if payload != nil {
			rdr = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
		if err != nil {
			return apperrors.Rejected(paypalName, "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("PayPal-Request-Id", requestID)

		resp, err := p.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.Transient(paypalName, "paypal request failed", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.Transient(paypalName, "read response", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return apperrors.Transient(paypalName, fmt.Sprintf("paypal returned %d", resp.StatusCode), nil)
		default:
			return apperrors.Rejected(paypalName, fmt.Sprintf("paypal returned %d: %s", resp.StatusCode, truncate(string(data), 200)), nil)
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return apperrors.Rejected(paypalName, "decode response", err)
			}
		}
		raw = nil
		_ = json.Unmarshal(data, &raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// orderTransaction normalizes an order. Unknown order statuses become
// an error transaction carrying the raw status.
func (p *PayPalProcessor) orderTransaction(order *paypalOrder, raw map[string]any) *domain.Transaction {
	txn := &domain.Transaction{
		Provider:      domain.ProviderPayPal,
		TransactionID: order.ID,
		CreatedAt:     parsePayPalTime(order.CreateTime),
		RawResponse:   raw,
	}
	if txn.RawResponse == nil {
		txn.RawResponse = map[string]any{"id": order.ID, "status": order.Status}
	}

	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		txn.Currency = unit.Amount.CurrencyCode
		if amt, err := money.Infer(unit.Amount.Value); err == nil {
			txn.Amount = amt
		}
	}

	status, ok := MapPayPalStatus(order.Status)
	txn.Status = status
	if !ok {
		txn.ErrorMessage = apperrors.Unmapped(paypalName, order.Status).Error()
		return txn
	}
	if status == domain.StatusPending {
		txn.PaymentURL = approvalLink(order.Links)
	}
	return txn
}

// MapPayPalStatus translates an order status into the normalized
// vocabulary. The second return is false for raw statuses outside the
// table.
func MapPayPalStatus(status string) (domain.Status, bool) {
	switch strings.ToUpper(status) {
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return domain.StatusPending, true
	case "COMPLETED":
		return domain.StatusSucceeded, true
	case "VOIDED":
		return domain.StatusCancelled, true
	default:
		return domain.StatusError, false
	}
}

func firstCapture(order *paypalOrder) *paypalCapture {
	for i := range order.PurchaseUnits {
		payments := order.PurchaseUnits[i].Payments
		if payments != nil && len(payments.Captures) > 0 {
			return &payments.Captures[0]
		}
	}
	return nil
}

func approvalLink(links []paypalLink) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func parsePayPalTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
