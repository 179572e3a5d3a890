package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts payment engine activity.
type Metrics struct {
	PaymentsTotal *prometheus.CounterVec
	ProviderCalls *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec
	StoreFailures prometheus.Counter
}

// NewMetrics registers the payment metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogauto",
			Subsystem: "payment",
			Name:      "payments_total",
			Help:      "Payment results by provider and normalized status.",
		}, []string{"provider", "status"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogauto",
			Subsystem: "payment",
			Name:      "provider_calls_total",
			Help:      "Calls dispatched to a provider by operation.",
		}, []string{"provider", "operation"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogauto",
			Subsystem: "payment",
			Name:      "rate_limited_total",
			Help:      "Calls refused because the provider quota was exhausted.",
		}, []string{"provider"}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "blogauto",
			Subsystem: "payment",
			Name:      "store_failures_total",
			Help:      "Transaction store writes that failed.",
		}),
	}
}
