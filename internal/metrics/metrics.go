package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus instruments for the sync loop.
type Metrics struct {
	registry      *prometheus.Registry
	insertsTotal  prometheus.Counter
	deletesTotal  prometheus.Counter
	errorsTotal   *prometheus.CounterVec
	managedRules  prometheus.Gauge
	lastSyncStamp prometheus.Gauge
}

// NewMetrics constructs a Metrics instance with an isolated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	insertsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dydns",
		Name:      "rules_inserted_total",
		Help:      "Total number of firewall rules inserted.",
	})

	deletesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dydns",
		Name:      "rules_deleted_total",
		Help:      "Total number of firewall rules deleted.",
	})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dydns",
		Name:      "errors_total",
		Help:      "Total number of sync errors by type.",
	}, []string{"type"})

	managedRules := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dydns",
		Name:      "managed_rules",
		Help:      "Number of tagged rules present in the last kernel snapshot.",
	})

	lastSyncStamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dydns",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix time of the last completed sync run.",
	})

	registry.MustRegister(insertsTotal, deletesTotal, errorsTotal, managedRules, lastSyncStamp)

	return &Metrics{
		registry:      registry,
		insertsTotal:  insertsTotal,
		deletesTotal:  deletesTotal,
		errorsTotal:   errorsTotal,
		managedRules:  managedRules,
		lastSyncStamp: lastSyncStamp,
	}
}

// AddInserts counts rules inserted during a run.
func (m *Metrics) AddInserts(count int) {
	m.insertsTotal.Add(float64(count))
}

// AddDeletes counts rules deleted during a run.
func (m *Metrics) AddDeletes(count int) {
	m.deletesTotal.Add(float64(count))
}

// IncrementError increments the error counter for the provided type label.
func (m *Metrics) IncrementError(errorType string) {
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

// SetManagedRules records the number of tagged rules seen in a snapshot.
func (m *Metrics) SetManagedRules(count int) {
	m.managedRules.Set(float64(count))
}

// SetLastSync records when a sync run completed.
func (m *Metrics) SetLastSync(unixSeconds float64) {
	m.lastSyncStamp.Set(unixSeconds)
}

// Handler exposes the Prometheus scrape handler bound to the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
