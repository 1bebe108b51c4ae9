package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Key rotation outcome labels.
const (
	RotationRotated = "rotated"
	RotationSkipped = "skipped"
	RotationFailed  = "failed"
)

// RotationMetrics tracks JWT signing key rotation runs.
type RotationMetrics struct {
	rotations *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewRotationMetrics registers the rotation family, or returns nil when
// metrics are disabled.
func NewRotationMetrics(reg prometheus.Registerer) *RotationMetrics {
	if reg == nil {
		return nil
	}
	return &RotationMetrics{
		rotations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_rotations_total",
				Help:      "Key rotation runs by outcome (skipped covers lost lock races)",
			},
			[]string{"outcome"},
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "key_rotation_duration_milliseconds",
				Help:      "Duration of rotation runs in milliseconds",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000},
			},
		),
	}
}

// Observe records one rotation run.
func (m *RotationMetrics) Observe(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(outcome).Inc()
	m.duration.Observe(float64(duration.Milliseconds()))
}
