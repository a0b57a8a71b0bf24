package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates Prometheus metrics for graph executions, individual
// steps, the cache facade, and fan-out batches.
//
// All record methods are safe to call on a nil *Collector, so callers may
// leave metrics unconfigured without guarding every call site.
type Collector struct {
	// Execution metrics
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	wavefrontSize     prometheus.Histogram

	// Step metrics
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	stepRetriesTotal *prometheus.CounterVec

	// Cache facade metrics
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// Fan-out metrics
	fanoutOpsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered against reg.
// A nil reg falls back to the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of graph executions by final status.",
		},
		[]string{"status"},
	)

	c.executionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of graph executions.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.wavefrontSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wavefront_size",
			Help:      "Number of steps dispatched per wavefront.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of step executions by step name and status.",
		},
		[]string{"step", "status"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of step executions, excluding concurrency-gate wait.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	c.stepRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of timeout-triggered step retries.",
		},
		[]string{"step"},
	)

	c.cacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits during cache warm-up.",
		},
	)

	c.cacheMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses during cache warm-up.",
		},
	)

	c.fanoutOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_operations_total",
			Help:      "Total number of fan-out operations by facade and status.",
		},
		[]string{"facade", "status"},
	)

	return c
}

// RecordExecution records one completed graph execution.
func (c *Collector) RecordExecution(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.executionsTotal.WithLabelValues(status).Inc()
	c.executionDuration.Observe(duration.Seconds())
}

// RecordWavefront records the size of a dispatched wavefront.
func (c *Collector) RecordWavefront(size int) {
	if c == nil {
		return
	}
	c.wavefrontSize.Observe(float64(size))
}

// RecordStep records one resolved step execution.
func (c *Collector) RecordStep(step, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(step, status).Inc()
	c.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordStepRetry records a timeout-triggered retry attempt for a step.
func (c *Collector) RecordStepRetry(step string) {
	if c == nil {
		return
	}
	c.stepRetriesTotal.WithLabelValues(step).Inc()
}

// RecordCacheHit records a cache hit observed by the cache facade.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss observed by the cache facade.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// RecordFanOut records the aggregate outcome of a fan-out batch.
func (c *Collector) RecordFanOut(facade string, succeeded, failed int) {
	if c == nil {
		return
	}
	c.fanoutOpsTotal.WithLabelValues(facade, "succeeded").Add(float64(succeeded))
	c.fanoutOpsTotal.WithLabelValues(facade, "failed").Add(float64(failed))
}
