package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rate limiter decision labels.
const (
	RateLimitAllowed  = "allowed"
	RateLimitLimited  = "limited"
	RateLimitFailOpen = "fail_open"
)

// RateLimitMetrics counts sliding-window limiter decisions.
type RateLimitMetrics struct {
	decisions *prometheus.CounterVec
}

// NewRateLimitMetrics registers the rate limit family, or returns nil when
// metrics are disabled.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	if reg == nil {
		return nil
	}
	return &RateLimitMetrics{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions (fail_open counts Redis outages)",
			},
			[]string{"decision"},
		),
	}
}

// Observe records one limiter decision.
func (m *RateLimitMetrics) Observe(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}
