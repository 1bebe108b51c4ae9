package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File event pipeline stage labels.
const (
	EventProduced     = "produced"
	EventConsumed     = "consumed"
	EventRetried      = "retried"
	EventDeadLettered = "dead_lettered"
)

// EventMetrics tracks the file-events stream pipeline.
type EventMetrics struct {
	events *prometheus.CounterVec
}

// NewEventMetrics registers the events family, or returns nil when metrics
// are disabled.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	if reg == nil {
		return nil
	}
	return &EventMetrics{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_events_total",
				Help:      "File events by pipeline stage and event type",
			},
			[]string{"stage", "event_type"},
		),
	}
}

// Observe records one event passing a pipeline stage.
func (m *EventMetrics) Observe(stage, eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(stage, eventType).Inc()
}
