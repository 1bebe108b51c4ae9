package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload outcome labels.
const (
	UploadCommitted = "committed"
	UploadFailed    = "failed"
	UploadRejected  = "rejected"
)

// UploadMetrics tracks the element write path.
type UploadMetrics struct {
	uploads  *prometheus.CounterVec
	bytes    prometheus.Histogram
	duration prometheus.Histogram
}

// NewUploadMetrics registers the upload family, or returns nil when metrics
// are disabled.
func NewUploadMetrics(reg prometheus.Registerer) *UploadMetrics {
	if reg == nil {
		return nil
	}
	return &UploadMetrics{
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Upload attempts by terminal outcome",
			},
			[]string{"status"},
		),
		bytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_bytes",
				Help:      "Distribution of committed upload sizes",
				Buckets: []float64{
					4096,       // 4KB
					65536,      // 64KB
					1048576,    // 1MB
					10485760,   // 10MB
					104857600,  // 100MB - CRITICAL admission cutoff
					1073741824, // 1GB
				},
			},
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_milliseconds",
				Help:      "End-to-end upload duration in milliseconds",
				Buckets: []float64{
					10,    // 10ms - tiny files
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					30000, // 30s - large streams
					60000, // 1m
				},
			},
		),
	}
}

// Observe records one upload attempt. Bytes and duration only feed the
// histograms on committed uploads.
func (m *UploadMetrics) Observe(status string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(status).Inc()
	if status == UploadCommitted {
		m.bytes.Observe(float64(bytes))
		m.duration.Observe(float64(duration.Milliseconds()))
	}
}
