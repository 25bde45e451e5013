package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exports agent operation metrics to Prometheus. It implements the
// orchestration OpsRecorder interface.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry, pre-populated with
// the standard Go and process collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentic_rag",
		Subsystem: "agent",
		Name:      "operations_total",
		Help:      "Total agent operations by agent, operation and status",
	}, []string{"agent", "operation", "status"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentic_rag",
		Subsystem: "agent",
		Name:      "operation_duration_seconds",
		Help:      "Agent operation latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"agent", "operation"})

	registry.MustRegister(operations, latency)

	return &Recorder{
		registry:   registry,
		operations: operations,
		latency:    latency,
	}
}

// ObserveOperation records one agent operation sample.
func (r *Recorder) ObserveOperation(agent, operation string, d time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(agent, operation, status).Inc()
	r.latency.WithLabelValues(agent, operation).Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
