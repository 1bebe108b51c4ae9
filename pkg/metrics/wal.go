package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WALMetrics counts write-ahead log transactions by terminal status.
type WALMetrics struct {
	transactions *prometheus.CounterVec
	recoveries   *prometheus.CounterVec
}

// NewWALMetrics registers the WAL family, or returns nil when metrics are
// disabled.
func NewWALMetrics(reg prometheus.Registerer) *WALMetrics {
	if reg == nil {
		return nil
	}
	return &WALMetrics{
		transactions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wal_transactions_total",
				Help:      "WAL transactions by terminal status",
			},
			[]string{"status"}, // COMMITTED, FAILED, ROLLED_BACK
		),
		recoveries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wal_recoveries_total",
				Help:      "Startup recovery actions by resolution",
			},
			[]string{"resolution"}, // committed, rolled_back, cleaned
		),
	}
}

// ObserveTransaction records a transaction reaching a terminal status.
func (m *WALMetrics) ObserveTransaction(status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(status).Inc()
}

// ObserveRecovery records one in-flight transaction resolved at startup.
func (m *WALMetrics) ObserveRecovery(resolution string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(resolution).Inc()
}
