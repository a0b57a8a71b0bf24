package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// ---------------------------------------------------------------------------
// FanOut — aggregation
// ---------------------------------------------------------------------------

func TestFanOut_AllSucceed(t *testing.T) {
	t.Parallel()
	inputs := []int{1, 2, 3, 4, 5}
	report := FanOut(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	}, 3)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 5, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Errors)

	sort.Ints(report.Results)
	assert.Equal(t, []int{1, 4, 9, 16, 25}, report.Results)
}

func TestFanOut_PartialFailure(t *testing.T) {
	t.Parallel()
	inputs := []int{1, 2, 3, 4}
	report := FanOut(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, fmt.Errorf("even input %d rejected", n)
		}
		return n, nil
	}, 2)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors, 2)
	for _, err := range report.Errors {
		assert.Contains(t, err.Error(), "input ")
	}
}

func TestFanOut_FailureNeverAbortsBatch(t *testing.T) {
	t.Parallel()
	var completed atomic.Int32
	inputs := make([]int, 20)
	report := FanOut(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
		defer completed.Add(1)
		return 0, errors.New("always fails")
	}, 4)

	assert.Equal(t, 20, report.Failed)
	assert.Equal(t, int32(20), completed.Load(), "every op runs despite earlier failures")
}

func TestFanOut_PanicBecomesFailure(t *testing.T) {
	t.Parallel()
	report := FanOut(context.Background(), []string{"ok", "bad"}, func(ctx context.Context, s string) (string, error) {
		if s == "bad" {
			panic("poisoned input")
		}
		return s, nil
	}, 2)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "operation panicked")
}

func TestFanOut_EmptyInputs(t *testing.T) {
	t.Parallel()
	report := FanOut(context.Background(), nil, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, 5)

	assert.Zero(t, report.Total)
	assert.Zero(t, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Results)
}

// ---------------------------------------------------------------------------
// FanOut — concurrency bound
// ---------------------------------------------------------------------------

func TestFanOut_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()
	var active, peak atomic.Int32
	inputs := make([]int, 16)

	FanOut(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return 0, nil
	}, 3)

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestFanOut_ZeroLimitFallsBackToDefault(t *testing.T) {
	t.Parallel()
	report := FanOut(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, 0)
	assert.Equal(t, 3, report.Succeeded)
}

// ---------------------------------------------------------------------------
// FanOut — properties
// ---------------------------------------------------------------------------

func TestFanOut_CountsAlwaysConsistent(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		inputs := rapid.SliceOfN(rapid.IntRange(0, 99), 0, 50).Draw(t, "inputs")
		failBelow := rapid.IntRange(0, 100).Draw(t, "failBelow")
		limit := rapid.IntRange(1, 8).Draw(t, "limit")

		report := FanOut(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
			if n < failBelow {
				return 0, fmt.Errorf("input %d below threshold", n)
			}
			return n, nil
		}, limit)

		if report.Total != len(inputs) {
			t.Fatalf("total %d != len(inputs) %d", report.Total, len(inputs))
		}
		if report.Succeeded+report.Failed != report.Total {
			t.Fatalf("succeeded %d + failed %d != total %d",
				report.Succeeded, report.Failed, report.Total)
		}
		if len(report.Results) != report.Succeeded {
			t.Fatalf("results %d != succeeded %d", len(report.Results), report.Succeeded)
		}
		if len(report.Errors) != report.Failed {
			t.Fatalf("errors %d != failed %d", len(report.Errors), report.Failed)
		}
	})
}
