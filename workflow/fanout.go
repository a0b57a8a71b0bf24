package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FanOutReport aggregates the outcome of one fan-out batch. Failed inputs
// are excluded from Results and counted separately; a failure never aborts
// the batch.
type FanOutReport[R any] struct {
	// Total is the number of inputs submitted.
	Total int
	// Succeeded is the number of operations that returned a result.
	Succeeded int
	// Failed is the number of operations that returned an error or panicked.
	Failed int
	// Results holds the successful results. Order follows completion, not
	// input order.
	Results []R
	// Errors holds one wrapped error per failed input.
	Errors []error
}

// FanOut applies op to every input concurrently, bounded by maxConcurrency
// (values below one fall back to DefaultMaxConcurrency). Inputs are mutually
// independent by construction, so no dependency graph is involved; this is
// the same bounded-concurrency pattern the execution engine uses for a
// wavefront, exposed directly for homogeneous collections.
func FanOut[T, R any](ctx context.Context, inputs []T, op func(ctx context.Context, in T) (R, error), maxConcurrency int) *FanOutReport[R] {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	report := &FanOutReport[R]{Total: len(inputs)}
	if len(inputs) == 0 {
		return report
	}

	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(maxConcurrency)

	for i, input := range inputs {
		group.Go(func() error {
			result, err := safeOp(ctx, input, op)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Errorf("input %d: %w", i, err))
				return nil
			}
			report.Succeeded++
			report.Results = append(report.Results, result)
			return nil
		})
	}

	// Ops report failures through the shared report, never through the group.
	_ = group.Wait()
	return report
}

// safeOp invokes op with panic capture, mirroring the step runner.
func safeOp[T, R any](ctx context.Context, input T, op func(ctx context.Context, in T) (R, error)) (result R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operation panicked: %v", p)
		}
	}()
	return op(ctx, input)
}
