// Package middleware provides cross-cutting concerns for the evaluation
// engine: a Prometheus-backed ports.MetricsCollector and an OpenTelemetry
// ports.BatchObserver.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-cohort/internal/ports"
)

const namespace = "cohort"

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. Metrics the engine emits by name get dedicated vectors; any
// other name falls through to a generic vector labeled with the metric
// name.
type PrometheusMetrics struct {
	operationLatency *prometheus.HistogramVec
	scoresSubmitted  *prometheus.CounterVec
	normalizedScore  *prometheus.HistogramVec
	batchItems       *prometheus.CounterVec
	txRetries        *prometheus.CounterVec
	scoreboardSize   *prometheus.GaugeVec

	operationCounter *prometheus.CounterVec
	valueHistogram   *prometheus.HistogramVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// its metrics with reg. Passing prometheus.DefaultRegisterer exposes them
// through the default handler; tests pass a fresh prometheus.NewRegistry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Execution time of engine operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		scoresSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scores_submitted_total",
				Help:      "Score records written, by kind and step.",
			},
			[]string{"kind", "step"},
		),
		normalizedScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "normalized_score",
				Help:      "Distribution of per-evaluator normalized totals.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"kind", "step"},
		),
		batchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_items_total",
				Help:      "Batch transition items, by outcome and skip reason.",
			},
			[]string{"transition", "outcome", "reason"},
		),
		txRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_retries_total",
				Help:      "Store transactions rerun after a retryable failure.",
			},
			[]string{"operation"},
		),
		scoreboardSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scoreboard_size",
				Help:      "Rows in the most recently computed scoreboard, by step.",
			},
			[]string{"step"},
		),

		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Counters without a dedicated metric, labeled by name.",
			},
			[]string{"metric", "status"},
		),
		valueHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "values",
				Help:      "Histograms without a dedicated metric, labeled by name.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_state",
				Help:      "Gauges without a dedicated metric, labeled by name.",
			},
			[]string{"metric"},
		),
	}
}

// label returns labels[key], or "unknown" when it is absent or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "scores_submitted_total":
		pm.scoresSubmitted.WithLabelValues(label(labels, "kind"), label(labels, "step")).Add(value)
	case "batch_items_total":
		// Committed items carry no reason; keep the label empty for them.
		pm.batchItems.WithLabelValues(label(labels, "transition"), label(labels, "outcome"), labels["reason"]).Add(value)
	case "tx_retries_total":
		pm.txRetries.WithLabelValues(label(labels, "operation")).Add(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case "scoreboard_size":
		pm.scoreboardSize.WithLabelValues(label(labels, "step")).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "normalized_score":
		pm.normalizedScore.WithLabelValues(label(labels, "kind"), label(labels, "step")).Observe(value)
	default:
		pm.valueHistogram.WithLabelValues(metric).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
