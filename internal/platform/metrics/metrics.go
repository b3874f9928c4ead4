// Package metrics exposes prometheus instrumentation for the generation
// pipeline. All collectors are registered on a dedicated registry so tests
// can create isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's collectors. Label "kind" is the task kind
// (outline, blocks, content).
type Metrics struct {
	registry *prometheus.Registry

	TasksEnqueued  *prometheus.CounterVec
	TasksLeased    *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	LeasesReaped   prometheus.Counter

	GenerationDuration *prometheus.HistogramVec
	ActiveWorkers      *prometheus.GaugeVec
}

// New creates and registers all pipeline collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		TasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegen_queue_tasks_enqueued_total",
			Help: "Generation tasks accepted by the queue.",
		}, []string{"kind"}),
		TasksLeased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegen_queue_tasks_leased_total",
			Help: "Generation tasks leased by workers.",
		}, []string{"kind"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegen_queue_tasks_completed_total",
			Help: "Generation tasks acknowledged as done.",
		}, []string{"kind"}),
		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegen_queue_tasks_failed_total",
			Help: "Generation tasks that exhausted their attempts.",
		}, []string{"kind"}),
		LeasesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegen_queue_leases_reaped_total",
			Help: "Expired leases returned to the queue by the janitor.",
		}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursegen_generation_duration_seconds",
			Help:    "Wall-clock duration of a single generation attempt.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}, []string{"kind"}),
		ActiveWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coursegen_workers_active",
			Help: "Workers currently processing a leased task.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.TasksEnqueued,
		m.TasksLeased,
		m.TasksCompleted,
		m.TasksFailed,
		m.LeasesReaped,
		m.GenerationDuration,
		m.ActiveWorkers,
	)

	return m
}

// Handler returns the HTTP handler serving the registry in the
// prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
