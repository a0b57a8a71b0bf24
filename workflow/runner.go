package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/stepflow-io/stepflow/internal/metrics"
)

// stepRunner executes one step at a time with resource bounding and
// resiliency: it holds a slot on the shared concurrency gate for the whole
// attempt loop, races each attempt against the step's timeout, and retries
// timed-out attempts up to the step's retry budget.
type stepRunner struct {
	gate      *semaphore.Weighted
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
}

// run executes the step and produces its outcome. It never returns an
// error; failures of any kind are folded into the outcome so the engine can
// apply criticality semantics uniformly.
func (r *stepRunner) run(ctx context.Context, step *Step, results map[string]any, report *ExecutionReport) StepOutcome {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return StepOutcome{
			StepName: step.Name,
			Status:   StepFailed,
			Err:      fmt.Errorf("acquiring concurrency slot: %w", err),
		}
	}
	defer r.gate.Release(1)

	// The duration clock starts only once the slot is held.
	record := report.recordStepStart(step.Name)
	start := time.Now()

	ctx, span := r.startStepSpan(ctx, step)
	result, attempts, err := r.attemptLoop(ctx, step, results)
	duration := time.Since(start)

	outcome := StepOutcome{
		StepName: step.Name,
		Duration: duration,
		Attempts: attempts,
	}
	if err != nil {
		outcome.Status = StepFailed
		outcome.Err = err
		r.logger.Warn("step failed",
			zap.String("step", step.Name),
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		outcome.Status = StepCompleted
		outcome.Result = result
		r.logger.Debug("step completed",
			zap.String("step", step.Name),
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
		)
	}

	recordStepSpan(span, outcome)
	r.collector.RecordStep(step.Name, string(outcome.Status), duration)
	report.recordStepEnd(record, outcome)

	return outcome
}

// attemptLoop invokes the work until it resolves, retrying only after
// timeouts and only within the step's retry budget.
func (r *stepRunner) attemptLoop(ctx context.Context, step *Step, results map[string]any) (any, int, error) {
	attempts := 0
	for {
		attempts++
		result, err := r.invoke(ctx, step, results)
		if err == nil {
			return result, attempts, nil
		}
		if !errors.Is(err, ErrStepTimeout) || attempts > step.Retries {
			return nil, attempts, err
		}

		r.logger.Warn("step timed out, retrying",
			zap.String("step", step.Name),
			zap.Duration("timeout", step.Timeout),
			zap.Int("attempt", attempts),
			zap.Int("retries_left", step.Retries-attempts+1),
		)
		r.collector.RecordStepRetry(step.Name)
	}
}

// invoke runs a single attempt. With a timeout configured, the work races a
// per-attempt deadline; the deadline only stops the scheduler from waiting,
// it cannot cancel side effects of work that ignores its context.
func (r *stepRunner) invoke(ctx context.Context, step *Step, results map[string]any) (any, error) {
	if step.Timeout <= 0 {
		return r.safeCall(ctx, step, results)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	type callResult struct {
		value any
		err   error
	}
	done := make(chan callResult, 1)

	go func() {
		value, err := r.safeCall(attemptCtx, step, results)
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Work observed the attempt deadline itself; normalize so the
			// retry policy sees a timeout either way.
			return nil, fmt.Errorf("step %q: %w after %s", step.Name, ErrStepTimeout, step.Timeout)
		}
		return res.value, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// Parent cancellation, not a per-attempt timeout.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("step %q: %w after %s", step.Name, ErrStepTimeout, step.Timeout)
	}
}

// safeCall invokes the work and converts panics into step execution errors
// so one misbehaving step cannot take down the engine.
func (r *stepRunner) safeCall(ctx context.Context, step *Step, results map[string]any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step %q panicked: %v", step.Name, p)
		}
	}()
	return step.Work(ctx, results)
}
