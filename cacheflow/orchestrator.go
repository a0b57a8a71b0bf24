package cacheflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stepflow-io/stepflow/internal/cache"
	"github.com/stepflow-io/stepflow/internal/metrics"
	"github.com/stepflow-io/stepflow/workflow"
)

// LookupFunc computes the value for a query on a cache miss.
type LookupFunc func(ctx context.Context, query string) (string, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrency bounds how many cache operations run at once.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger.With(zap.String("component", "cacheflow"))
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.collector = collector
	}
}

// WithRateLimit throttles miss lookups to rps requests per second with the
// given burst, protecting a rate-limited backend during warm-up.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Orchestrator) {
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithKeyPrefix namespaces every cache key ("prefix:query").
func WithKeyPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		o.keyPrefix = prefix
	}
}

// WithTTL sets the TTL applied to values stored during warm-up.
func WithTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.ttl = ttl
	}
}

// Orchestrator applies bounded fan-out to homogeneous, mutually independent
// cache operations: warming a set of queries and invalidating a set of key
// patterns. Every input is independent by construction, so no dependency
// graph is involved; individual failures are counted, never fatal.
type Orchestrator struct {
	cache          *cache.Manager
	logger         *zap.Logger
	collector      *metrics.Collector
	limiter        *rate.Limiter
	maxConcurrency int
	keyPrefix      string
	ttl            time.Duration
}

// NewOrchestrator creates a cache workflow orchestrator over an existing
// cache manager.
func NewOrchestrator(manager *cache.Manager, opts ...Option) (*Orchestrator, error) {
	if manager == nil {
		return nil, errors.New("cache manager is nil")
	}

	o := &Orchestrator{
		cache:          manager,
		logger:         zap.NewNop(),
		maxConcurrency: workflow.DefaultMaxConcurrency,
		ttl:            0, // manager default
	}
	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// WarmReport aggregates one WarmCache batch.
type WarmReport struct {
	// Total is the number of queries submitted.
	Total int `json:"total"`
	// Hits is the number of queries already cached.
	Hits int `json:"hits"`
	// Misses is the number of queries computed and stored.
	Misses int `json:"misses"`
	// Failed is the number of queries whose lookup or store failed.
	Failed int `json:"failed"`
	// HitRate is Hits over Total, 0 for an empty batch.
	HitRate float64 `json:"hit_rate"`
}

type warmOutcome struct {
	query string
	hit   bool
}

// WarmCache looks up every query concurrently; on a miss it computes the
// value via lookup and stores it. Individual failures are counted and do
// not abort the batch.
func (o *Orchestrator) WarmCache(ctx context.Context, queries []string, lookup LookupFunc) (*WarmReport, error) {
	if lookup == nil {
		return nil, errors.New("lookup function is nil")
	}

	o.logger.Info("warming cache",
		zap.Int("queries", len(queries)),
		zap.Int("max_concurrency", o.maxConcurrency),
	)

	result := workflow.FanOut(ctx, queries, func(ctx context.Context, query string) (warmOutcome, error) {
		return o.warmOne(ctx, query, lookup)
	}, o.maxConcurrency)

	report := &WarmReport{
		Total:  result.Total,
		Failed: result.Failed,
	}
	for _, outcome := range result.Results {
		if outcome.hit {
			report.Hits++
		} else {
			report.Misses++
		}
	}
	if report.Total > 0 {
		report.HitRate = float64(report.Hits) / float64(report.Total)
	}

	for _, err := range result.Errors {
		o.logger.Warn("cache warm-up entry failed", zap.Error(err))
	}
	o.collector.RecordFanOut("cache_warm", result.Succeeded, result.Failed)

	o.logger.Info("cache warm-up finished",
		zap.Int("total", report.Total),
		zap.Int("hits", report.Hits),
		zap.Int("misses", report.Misses),
		zap.Int("failed", report.Failed),
		zap.Float64("hit_rate", report.HitRate),
	)

	return report, nil
}

// warmOne resolves a single query: cache hit, or rate-limited lookup + store.
func (o *Orchestrator) warmOne(ctx context.Context, query string, lookup LookupFunc) (warmOutcome, error) {
	key := o.key(query)

	_, err := o.cache.Get(ctx, key)
	if err == nil {
		o.collector.RecordCacheHit()
		return warmOutcome{query: query, hit: true}, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return warmOutcome{}, fmt.Errorf("query %q: %w", query, err)
	}

	o.collector.RecordCacheMiss()

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return warmOutcome{}, fmt.Errorf("query %q: %w", query, err)
		}
	}

	value, err := lookup(ctx, query)
	if err != nil {
		return warmOutcome{}, fmt.Errorf("query %q: lookup failed: %w", query, err)
	}

	if err := o.cache.Set(ctx, key, value, o.ttl); err != nil {
		return warmOutcome{}, fmt.Errorf("query %q: %w", query, err)
	}

	return warmOutcome{query: query, hit: false}, nil
}

// InvalidateReport aggregates one InvalidatePatterns batch.
type InvalidateReport struct {
	// Total is the number of patterns submitted.
	Total int `json:"total"`
	// Succeeded is the number of patterns processed without error.
	Succeeded int `json:"succeeded"`
	// Failed is the number of patterns whose invalidation failed.
	Failed int `json:"failed"`
	// KeysRemoved is the total number of keys deleted across all patterns.
	KeysRemoved int64 `json:"keys_removed"`
}

// InvalidatePatterns removes all keys matching each glob pattern,
// concurrently and independently per pattern.
func (o *Orchestrator) InvalidatePatterns(ctx context.Context, patterns []string) (*InvalidateReport, error) {
	o.logger.Info("invalidating cache patterns", zap.Int("patterns", len(patterns)))

	result := workflow.FanOut(ctx, patterns, func(ctx context.Context, pattern string) (int64, error) {
		removed, err := o.cache.DeletePattern(ctx, o.key(pattern))
		if err != nil {
			return 0, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		return removed, nil
	}, o.maxConcurrency)

	report := &InvalidateReport{
		Total:     result.Total,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	}
	for _, removed := range result.Results {
		report.KeysRemoved += removed
	}

	for _, err := range result.Errors {
		o.logger.Warn("cache invalidation entry failed", zap.Error(err))
	}
	o.collector.RecordFanOut("cache_invalidate", result.Succeeded, result.Failed)

	o.logger.Info("cache invalidation finished",
		zap.Int("total", report.Total),
		zap.Int("failed", report.Failed),
		zap.Int64("keys_removed", report.KeysRemoved),
	)

	return report, nil
}

func (o *Orchestrator) key(query string) string {
	if o.keyPrefix == "" {
		return query
	}
	return o.keyPrefix + ":" + query
}
