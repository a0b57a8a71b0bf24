package cacheflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stepflow-io/stepflow/internal/cache"
)

func setupOrchestrator(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Orchestrator) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
		PoolSize:   4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	orch, err := NewOrchestrator(manager, opts...)
	require.NoError(t, err)
	return mr, orch
}

func echoLookup(ctx context.Context, query string) (string, error) {
	return "value-" + query, nil
}

// ---------------------------------------------------------------------------
// NewOrchestrator
// ---------------------------------------------------------------------------

func TestNewOrchestrator_NilManager(t *testing.T) {
	_, err := NewOrchestrator(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache manager is nil")
}

// ---------------------------------------------------------------------------
// WarmCache
// ---------------------------------------------------------------------------

func TestWarmCache_AllMisses(t *testing.T) {
	mr, orch := setupOrchestrator(t)

	report, err := orch.WarmCache(context.Background(), []string{"q1", "q2", "q3"}, echoLookup)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Zero(t, report.Hits)
	assert.Equal(t, 3, report.Misses)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.HitRate)

	got, err := mr.Get("q2")
	require.NoError(t, err)
	assert.Equal(t, "value-q2", got)
}

func TestWarmCache_MixedHitsAndMisses(t *testing.T) {
	mr, orch := setupOrchestrator(t)
	require.NoError(t, mr.Set("q1", "cached"))

	var lookups atomic.Int32
	report, err := orch.WarmCache(context.Background(), []string{"q1", "q2"}, func(ctx context.Context, query string) (string, error) {
		lookups.Add(1)
		return "fresh-" + query, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Hits)
	assert.Equal(t, 1, report.Misses)
	assert.InDelta(t, 0.5, report.HitRate, 1e-9)
	assert.Equal(t, int32(1), lookups.Load(), "hits must not trigger lookups")

	got, err := mr.Get("q1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got, "hits leave the cached value untouched")
}

func TestWarmCache_LookupFailuresAreCounted(t *testing.T) {
	_, orch := setupOrchestrator(t)

	report, err := orch.WarmCache(context.Background(), []string{"ok", "broken"}, func(ctx context.Context, query string) (string, error) {
		if query == "broken" {
			return "", errors.New("backend unavailable")
		}
		return "v", nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Misses)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Hits)
}

func TestWarmCache_NilLookup(t *testing.T) {
	_, orch := setupOrchestrator(t)
	_, err := orch.WarmCache(context.Background(), []string{"q"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup function is nil")
}

func TestWarmCache_EmptyBatch(t *testing.T) {
	_, orch := setupOrchestrator(t)

	report, err := orch.WarmCache(context.Background(), nil, echoLookup)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Zero(t, report.HitRate)
}

func TestWarmCache_KeyPrefix(t *testing.T) {
	mr, orch := setupOrchestrator(t, WithKeyPrefix("search"))

	_, err := orch.WarmCache(context.Background(), []string{"go"}, echoLookup)
	require.NoError(t, err)

	got, err := mr.Get("search:go")
	require.NoError(t, err)
	assert.Equal(t, "value-go", got)
}

func TestWarmCache_RateLimitThrottlesLookups(t *testing.T) {
	_, orch := setupOrchestrator(t, WithRateLimit(50, 1))

	start := time.Now()
	report, err := orch.WarmCache(context.Background(), []string{"a", "b", "c", "d", "e"}, echoLookup)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 5, report.Misses)
	// 5 lookups at 50 rps with burst 1 take at least ~80ms.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestWarmCache_ConcurrencyBound(t *testing.T) {
	_, orch := setupOrchestrator(t, WithMaxConcurrency(2))

	var active, peak atomic.Int32
	queries := make([]string, 10)
	for i := range queries {
		queries[i] = fmt.Sprintf("q%d", i)
	}

	report, err := orch.WarmCache(context.Background(), queries, func(ctx context.Context, query string) (string, error) {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return "v", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, report.Misses)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// ---------------------------------------------------------------------------
// InvalidatePatterns
// ---------------------------------------------------------------------------

func TestInvalidatePatterns(t *testing.T) {
	mr, orch := setupOrchestrator(t)
	require.NoError(t, mr.Set("report:a", "1"))
	require.NoError(t, mr.Set("report:b", "2"))
	require.NoError(t, mr.Set("user:a", "3"))

	report, err := orch.InvalidatePatterns(context.Background(), []string{"report:*", "session:*"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(2), report.KeysRemoved)

	assert.False(t, mr.Exists("report:a"))
	assert.True(t, mr.Exists("user:a"))
}

func TestInvalidatePatterns_WithPrefix(t *testing.T) {
	mr, orch := setupOrchestrator(t, WithKeyPrefix("search"))
	require.NoError(t, mr.Set("search:go", "1"))
	require.NoError(t, mr.Set("other:go", "2"))

	report, err := orch.InvalidatePatterns(context.Background(), []string{"*"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.KeysRemoved)
	assert.True(t, mr.Exists("other:go"))
}

func TestInvalidatePatterns_EmptyBatch(t *testing.T) {
	_, orch := setupOrchestrator(t)

	report, err := orch.InvalidatePatterns(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Zero(t, report.KeysRemoved)
}
