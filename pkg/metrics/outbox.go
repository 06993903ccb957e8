package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts outbox publish attempts.
type OutboxMetrics struct {
	published *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox publish attempts by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(published)
	return &OutboxMetrics{published: published}
}

// IncPublish counts one publish attempt.
func (m *OutboxMetrics) IncPublish(eventType, result string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
