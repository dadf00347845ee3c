package procmgr

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalPromMetrics *PromMetrics
	promMetricsOnce   sync.Once
)

// PromMetrics holds Prometheus metrics for the Process Manager,
// following pkg/prefetch/metrics.go's promauto + sync.Once pattern to
// avoid duplicate-registration panics across repeated construction.
type PromMetrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration prometheus.Histogram
	QueueDepth   prometheus.Gauge
	ActiveCalls  prometheus.Gauge
}

// NewPromMetrics creates (once, process-wide) and registers Process
// Manager metrics, all prefixed "procmgr_".
func NewPromMetrics() *PromMetrics {
	promMetricsOnce.Do(func() {
		globalPromMetrics = &PromMetrics{
			CallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "procmgr_calls_total",
					Help: "Total number of subprocess calls, by outcome",
				},
				[]string{"outcome"}, // "success", "failure", "timeout"
			),
			CallDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "procmgr_call_duration_seconds",
					Help:    "Duration of subprocess calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
				},
			),
			QueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "procmgr_queue_depth",
					Help: "Current number of calls waiting for a concurrency slot",
				},
			),
			ActiveCalls: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "procmgr_active_calls",
					Help: "Current number of running subprocess calls",
				},
			),
		}
	})
	return globalPromMetrics
}

// RecordCall records one completed call's outcome and duration.
func (p *PromMetrics) RecordCall(outcome string, durationSeconds float64) {
	p.CallsTotal.WithLabelValues(outcome).Inc()
	p.CallDuration.Observe(durationSeconds)
}
