package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records the outcomes of the pricing, shipping, payment and
// finalize stages of checkout.
type CheckoutMetrics struct {
	quotes           *prometheus.CounterVec
	quoteDuration    *prometheus.HistogramVec
	payments         *prometheus.CounterVec
	finalize         *prometheus.CounterVec
	finalizeDuration prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_shipping_quotes_total",
		Help: "Vendor shipping quotes by resulting status.",
	}, []string{"status"})
	quoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_shipping_quote_duration_seconds",
		Help:    "Duration of individual vendor shipping quotes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_outcomes_total",
		Help: "Terminal payment outcomes reported per provider.",
	}, []string{"provider", "outcome"})
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_finalize_total",
		Help: "Order finalize attempts by result.",
	}, []string{"result"})
	finalizeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_finalize_duration_seconds",
		Help:    "Duration of order finalization.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(quotes, quoteDuration, payments, finalize, finalizeDuration)
	return &CheckoutMetrics{
		quotes:           quotes,
		quoteDuration:    quoteDuration,
		payments:         payments,
		finalize:         finalize,
		finalizeDuration: finalizeDuration,
	}
}

// ObserveQuote records one vendor quote.
func (m *CheckoutMetrics) ObserveQuote(status string, duration time.Duration) {
	if m == nil || m.quotes == nil {
		return
	}
	status = normalizeLabel(status)
	m.quotes.WithLabelValues(status).Inc()
	m.quoteDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncPaymentOutcome counts a terminal payment outcome.
func (m *CheckoutMetrics) IncPaymentOutcome(provider, outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// ObserveFinalize records the result and duration of a finalize attempt.
func (m *CheckoutMetrics) ObserveFinalize(result string, duration time.Duration) {
	if m == nil || m.finalize == nil {
		return
	}
	m.finalize.WithLabelValues(normalizeLabel(result)).Inc()
	m.finalizeDuration.Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
