// Package metrics records batch-pass progress as Prometheus metrics.
//
// Passes are short-lived processes, so instead of serving /metrics the
// registry is written once at exit in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hurttlocker/tripletags/internal/batch"
)

const namespace = "tripletags"

// Metrics holds every collector for a process.
type Metrics struct {
	registry *prometheus.Registry

	rows          *prometheus.CounterVec
	commits       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	runDuration   *prometheus.GaugeVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows seen by a pass, by outcome.",
		}, []string{"pass", "outcome"}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_commits_total",
			Help:      "Transactions committed by a pass.",
		}, []string{"pass"}),

		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time from opening a batch transaction to its commit.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"pass"}),

		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the pass last completed.",
		}, []string{"pass"}),

		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last completed pass.",
		}, []string{"pass"}),
	}

	reg.MustRegister(m.rows, m.commits, m.batchDuration, m.lastSuccess, m.runDuration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ForPass returns a batch.Observer that labels everything with pass.
func (m *Metrics) ForPass(pass string) batch.Observer {
	return passObserver{m: m, pass: pass}
}

// PassCompleted marks pass as finished after d.
func (m *Metrics) PassCompleted(pass string, d time.Duration, at time.Time) {
	m.runDuration.WithLabelValues(pass).Set(d.Seconds())
	m.lastSuccess.WithLabelValues(pass).Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

type passObserver struct {
	m    *Metrics
	pass string
}

func (o passObserver) RowDone(outcome string) {
	o.m.rows.WithLabelValues(o.pass, outcome).Inc()
}

func (o passObserver) Committed(d time.Duration) {
	o.m.commits.WithLabelValues(o.pass).Inc()
	o.m.batchDuration.WithLabelValues(o.pass).Observe(d.Seconds())
}
