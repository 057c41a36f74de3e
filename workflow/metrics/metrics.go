// Package metrics provides Prometheus-compatible instrumentation for a
// workflow run, grounded in the teacher's graph/metrics.go
// PrometheusMetrics collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cwlgo/wfcore/workflow"
)

// PrometheusMetrics implements workflow.MetricsSink with counters and
// gauges namespaced "wfcore_", covering step and scatter-shard
// throughput alongside per-step latency.
type PrometheusMetrics struct {
	activeSteps  prometheus.Gauge
	shardsInFlight prometheus.Gauge

	stepsCompleted *prometheus.CounterVec
	shardsTotal    prometheus.Counter
	retries        *prometheus.CounterVec

	stepLatency *prometheus.HistogramVec

	mu      sync.Mutex
	running map[string]int
}

// NewPrometheusMetrics registers every collector with registry (pass
// prometheus.DefaultRegisterer for the global registry).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		activeSteps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wfcore",
			Name:      "active_steps",
			Help:      "Number of steps currently submitted and not yet completed",
		}),
		shardsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wfcore",
			Name:      "scatter_shards_in_flight",
			Help:      "Number of scatter shards currently dispatched",
		}),
		stepsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "steps_completed_total",
			Help:      "Cumulative steps completed, labeled by final status",
		}, []string{"status"}),
		shardsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "scatter_shards_total",
			Help:      "Cumulative scatter shards dispatched",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "retries_total",
			Help:      "Cumulative step retry attempts",
		}, []string{"step_id"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wfcore",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds, from submit to completion",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"step_id", "status"}),
		running: make(map[string]int),
	}
}

func (pm *PrometheusMetrics) StepStarted(stepID string) {
	pm.mu.Lock()
	pm.running[stepID]++
	pm.activeSteps.Set(float64(len(pm.running)))
	pm.mu.Unlock()
}

func (pm *PrometheusMetrics) StepCompleted(stepID string, status workflow.Status, elapsed time.Duration) {
	pm.mu.Lock()
	delete(pm.running, stepID)
	pm.activeSteps.Set(float64(len(pm.running)))
	pm.mu.Unlock()

	pm.stepsCompleted.WithLabelValues(string(status)).Inc()
	pm.stepLatency.WithLabelValues(stepID, string(status)).Observe(float64(elapsed.Milliseconds()))
}

func (pm *PrometheusMetrics) ShardDispatched(stepID string) {
	pm.shardsTotal.Inc()
	pm.shardsInFlight.Inc()
}

func (pm *PrometheusMetrics) RetryRecorded(stepID string) {
	pm.retries.WithLabelValues(stepID).Inc()
}
