// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/batch"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器, 实现 batch.Observer
type Collector struct {
	// 后端调用指标
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	retriesTotal *prometheus.CounterVec

	// 批次指标
	subCallsInFlight prometheus.Gauge
	subCallsSucceeded  prometheus.Counter
	subCallsFailed   prometheus.Counter
	costTotal        prometheus.Counter

	logger *zap.Logger
}

var _ batch.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Total number of generation backend calls",
		},
		[]string{"provider", "kind", "status"},
	)

	c.callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Generation backend call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "kind"},
	)

	c.retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subcall_retries_total",
			Help:      "Total number of sub-call retry requeues",
		},
		[]string{"provider", "kind"},
	)

	c.subCallsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subcalls_in_flight",
			Help:      "Number of sub-calls currently executing against the backend",
		},
	)

	c.subCallsSucceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subcalls_succeeded_total",
			Help:      "Total number of sub-calls that reached terminal success",
		},
	)

	c.subCallsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subcalls_failed_total",
			Help:      "Total number of sub-calls that reached terminal failure",
		},
	)

	c.costTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cost_total",
			Help:      "Total estimated generation cost in USD",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 batch.Observer 实现
// =============================================================================

// ObserveCall 记录一次后端调用
func (c *Collector) ObserveCall(provider string, kind batch.CallKind, status string, seconds float64) {
	c.callsTotal.WithLabelValues(provider, string(kind), status).Inc()
	c.callDuration.WithLabelValues(provider, string(kind)).Observe(seconds)
}

// ObserveRetry 记录一次重试入队
func (c *Collector) ObserveRetry(provider string, kind batch.CallKind) {
	c.retriesTotal.WithLabelValues(provider, string(kind)).Inc()
}

// ObserveOutcome 记录批次终态汇总
func (c *Collector) ObserveOutcome(succeeded, failed int, cost float64) {
	c.subCallsSucceeded.Add(float64(succeeded))
	c.subCallsFailed.Add(float64(failed))
	c.costTotal.Add(cost)
}

// SetInFlight 更新在途子调用数
func (c *Collector) SetInFlight(n int) {
	c.subCallsInFlight.Set(float64(n))
}
