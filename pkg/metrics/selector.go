package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Selector outcome labels.
const (
	SelectorSelected     = "selected"
	SelectorNoEligible   = "no_eligible"
	SelectorFileTooLarge = "file_too_large"
	SelectorWouldFill    = "would_fill"
)

// SelectorMetrics tracks ingester placement decisions.
type SelectorMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewSelectorMetrics registers the selector family, or returns nil when
// metrics are disabled.
func NewSelectorMetrics(reg prometheus.Registerer) *SelectorMetrics {
	if reg == nil {
		return nil
	}
	return &SelectorMetrics{
		outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selector_outcomes_total",
				Help:      "Storage element selection outcomes",
			},
			[]string{"outcome"},
		),
	}
}

// Observe records one selection outcome.
func (m *SelectorMetrics) Observe(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
