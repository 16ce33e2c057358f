package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "stagesync"

// Metrics holds the prometheus collectors for synchronization runs.
type Metrics struct {
	registry    *prometheus.Registry
	rows        *prometheus.CounterVec
	phase       *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows classified per entity and classification.",
		}, []string{"entity", "classification"}),
		phase: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_seconds",
			Help:      "Duration of each synchronization phase.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"entity", "phase"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Failed entity runs by error kind.",
		}, []string{"entity", "kind"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp",
			Help:      "Unix time of the last successful run per entity.",
		}, []string{"entity"}),
	}
	m.registry.MustRegister(m.rows, m.phase, m.failures, m.lastSuccess)
	return m
}

// Registry exposes the collectors for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) AddRows(entity string, counts map[string]int) {
	for classification, n := range counts {
		m.rows.WithLabelValues(entity, classification).Add(float64(n))
	}
}

func (m *Metrics) ObservePhase(entity string, phase string, d time.Duration) {
	m.phase.WithLabelValues(entity, phase).Observe(d.Seconds())
}

func (m *Metrics) IncFailure(entity string, kind string) {
	m.failures.WithLabelValues(entity, kind).Inc()
}

func (m *Metrics) SetSuccess(entity string, t time.Time) {
	m.lastSuccess.WithLabelValues(entity).Set(float64(t.Unix()))
}

// Push sends the current values to a Pushgateway under job.
func (m *Metrics) Push(url string, job string) error {
	return push.New(url, job).Gatherer(m.registry).Push()
}
