package agenttask

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func constSubtask(id, output string) Subtask {
	return Subtask{
		ID: id,
		Run: func(ctx context.Context) (string, error) {
			return output, nil
		},
	}
}

// ---------------------------------------------------------------------------
// Decompose — aggregation
// ---------------------------------------------------------------------------

func TestDecompose_AllSucceed(t *testing.T) {
	t.Parallel()
	d := NewDecomposer(WithLogger(zap.NewNop()))

	result, err := d.Decompose(context.Background(), "summarize the report", []Subtask{
		constSubtask("intro", "summary of intro"),
		constSubtask("body", "summary of body"),
		constSubtask("outro", "summary of outro"),
	})
	require.NoError(t, err)

	assert.Equal(t, "summarize the report", result.Task)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)

	outputs := result.Outputs()
	assert.Equal(t, "summary of body", outputs["body"])
	assert.Len(t, outputs, 3)
}

func TestDecompose_PartialFailure(t *testing.T) {
	t.Parallel()
	d := NewDecomposer()

	result, err := d.Decompose(context.Background(), "analyze", []Subtask{
		constSubtask("ok", "fine"),
		{ID: "bad", Run: func(ctx context.Context) (string, error) {
			return "", errors.New("source unreadable")
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	outputs := result.Outputs()
	assert.Len(t, outputs, 1)
	assert.Equal(t, "fine", outputs["ok"])

	var failed *SubtaskResult
	for i := range result.Subtasks {
		if result.Subtasks[i].ID == "bad" {
			failed = &result.Subtasks[i]
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.Error, "source unreadable")
}

func TestDecompose_PanicBecomesFailure(t *testing.T) {
	t.Parallel()
	d := NewDecomposer()

	result, err := d.Decompose(context.Background(), "risky", []Subtask{
		{ID: "explodes", Run: func(ctx context.Context) (string, error) {
			panic("bad state")
		}},
		constSubtask("stable", "done"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	for _, sub := range result.Subtasks {
		if sub.ID == "explodes" {
			assert.Contains(t, sub.Error, "panicked")
		}
	}
}

func TestDecompose_EmptyBatch(t *testing.T) {
	t.Parallel()
	d := NewDecomposer()

	result, err := d.Decompose(context.Background(), "nothing to do", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Empty(t, result.Outputs())
}

// ---------------------------------------------------------------------------
// Decompose — validation
// ---------------------------------------------------------------------------

func TestDecompose_RejectsMissingID(t *testing.T) {
	t.Parallel()
	d := NewDecomposer()

	_, err := d.Decompose(context.Background(), "task", []Subtask{
		{Run: func(ctx context.Context) (string, error) { return "", nil }},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no ID")
}

func TestDecompose_RejectsNilRun(t *testing.T) {
	t.Parallel()
	d := NewDecomposer()

	_, err := d.Decompose(context.Background(), "task", []Subtask{{ID: "empty"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no run function")
}

// ---------------------------------------------------------------------------
// Decompose — concurrency
// ---------------------------------------------------------------------------

func TestDecompose_RespectsConcurrencyBound(t *testing.T) {
	t.Parallel()
	d := NewDecomposer(WithMaxConcurrency(2))

	var active, peak atomic.Int32
	subtasks := make([]Subtask, 12)
	for i := range subtasks {
		subtasks[i] = Subtask{
			ID: fmt.Sprintf("sub-%d", i),
			Run: func(ctx context.Context) (string, error) {
				cur := active.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return "ok", nil
			},
		}
	}

	result, err := d.Decompose(context.Background(), "wide task", subtasks)
	require.NoError(t, err)
	assert.Equal(t, 12, result.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
