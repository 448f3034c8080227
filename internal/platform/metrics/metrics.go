package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	ListsRegistered prometheus.Counter
	BatchesApplied  prometheus.Counter
	ListsReplaced   prometheus.Counter
	BitsSet         prometheus.Counter
	BitsCleared     prometheus.Counter
	OperationErrors *prometheus.CounterVec
	OperationTime   *prometheus.HistogramVec
	SnapshotLists   prometheus.Gauge
}

// New creates the metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ListsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "rl_lists_registered_total",
			Help: "Total number of revocation lists registered",
		}),
		BatchesApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "rl_batches_applied_total",
			Help: "Total number of set/clear batches applied to revocation lists",
		}),
		ListsReplaced: f.NewCounter(prometheus.CounterOpts{
			Name: "rl_lists_replaced_total",
			Help: "Total number of whole-list replacements",
		}),
		BitsSet: f.NewCounter(prometheus.CounterOpts{
			Name: "rl_bits_set_total",
			Help: "Total number of distinct indices set across all batches",
		}),
		BitsCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "rl_bits_cleared_total",
			Help: "Total number of distinct indices cleared across all batches",
		}),
		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rl_operation_errors_total",
			Help: "Operation failures by operation and error code",
		}, []string{"operation", "code"}),
		OperationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rl_operation_duration_seconds",
			Help:    "Latency of registry operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		SnapshotLists: f.NewGauge(prometheus.GaugeOpts{
			Name: "rl_snapshot_lists",
			Help: "Number of lists written by the last snapshot export",
		}),
	}
}

func (m *Metrics) IncrementListsRegistered() {
	m.ListsRegistered.Inc()
}

// ObserveBatch records one applied batch and the distinct indices it touched.
func (m *Metrics) ObserveBatch(setCount, clearCount int) {
	m.BatchesApplied.Inc()
	m.BitsSet.Add(float64(setCount))
	m.BitsCleared.Add(float64(clearCount))
}

func (m *Metrics) IncrementListsReplaced() {
	m.ListsReplaced.Inc()
}

func (m *Metrics) ObserveError(operation, code string) {
	m.OperationErrors.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	m.OperationTime.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetSnapshotLists(n int) {
	m.SnapshotLists.Set(float64(n))
}
