// Package metrics exposes Prometheus metrics for task execution and the
// descriptor catalog.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/suidriver/internal/api"
)

const Namespace = "suidriver"

// Metrics owns a private registry so several drivers (and tests) can coexist
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal   *prometheus.CounterVec
	tasksRunning prometheus.Gauge
	taskDuration *prometheus.HistogramVec
	stepsTotal   *prometheus.CounterVec
	descriptors  prometheus.Gauge
	rescans      *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_total",
			Help:      "Count of finished tasks by final state",
		}, []string{"state"}),
		tasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tasks_running",
			Help:      "Number of tasks currently running",
		}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of task runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"state"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps_total",
			Help:      "Count of finished test steps by status",
		}, []string{"status"}),
		descriptors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "catalog_descriptors",
			Help:      "Number of descriptors in the catalog",
		}),
		rescans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "loader_rescans_total",
			Help:      "Count of project directory scans",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TaskStarted() {
	m.tasksRunning.Inc()
}

// TaskFinished records a run that reached a terminal state. It must pair
// with TaskStarted.
func (m *Metrics) TaskFinished(state api.ExecutionState, d time.Duration) {
	m.tasksRunning.Dec()
	m.RecordTask(state)
	m.taskDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

// RecordTask counts a task that ended, including ones that never ran.
func (m *Metrics) RecordTask(state api.ExecutionState) {
	m.tasksTotal.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) StepFinished(status api.Status) {
	m.stepsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) SetDescriptors(n int) {
	m.descriptors.Set(float64(n))
}

func (m *Metrics) Rescanned(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.rescans.WithLabelValues(result).Inc()
}
