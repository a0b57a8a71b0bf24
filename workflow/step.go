package workflow

import (
	"context"
	"time"
)

// WorkFunc is the unit of work executed by a step. It receives the results
// of every step that has already resolved (plus any caller-supplied initial
// values) keyed by step name. Implementations must not mutate the results
// map; the engine shares it read-only across a wavefront.
type WorkFunc func(ctx context.Context, results map[string]any) (any, error)

// Step declares a named unit of work and its scheduling contract.
type Step struct {
	// Name uniquely identifies the step within a graph.
	Name string

	// Work is invoked once all dependencies have resolved.
	Work WorkFunc

	// DependsOn lists the step names that must resolve before this step
	// may start. A non-critical dependency counts as resolved even when
	// it failed.
	DependsOn []string

	// Critical controls failure semantics: a failing critical step aborts
	// the whole execution, a failing non-critical step is recorded and the
	// run continues with a nil result in its slot. NewStep and the Builder
	// default this to true.
	Critical bool

	// Timeout bounds a single attempt of Work. Zero means no timeout.
	Timeout time.Duration

	// Retries is the number of additional attempts after a timeout.
	// Retries are timeout-triggered only; generic errors are not retried.
	Retries int
}

// NewStep creates a critical step with the given dependencies.
func NewStep(name string, work WorkFunc, dependsOn ...string) Step {
	return Step{
		Name:      name,
		Work:      work,
		DependsOn: dependsOn,
		Critical:  true,
	}
}

// StepStatus is the terminal status of a step execution.
type StepStatus string

const (
	// StepCompleted indicates the step produced a result.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step failed, timed out, or panicked.
	StepFailed StepStatus = "failed"
)

// StepOutcome records the resolution of one step. It is immutable once
// produced by the runner.
type StepOutcome struct {
	// StepName is the step this outcome belongs to.
	StepName string
	// Status is StepCompleted or StepFailed.
	Status StepStatus
	// Result is the value produced by the work; set iff Status is StepCompleted.
	Result any
	// Err is the failure cause; set iff Status is StepFailed.
	Err error
	// Duration covers all attempts, measured from just before the first
	// invocation to resolution. Time spent waiting for a concurrency slot
	// is excluded.
	Duration time.Duration
	// Attempts is the number of invocations of the work, including retries.
	Attempts int
}
