package workflow

import "errors"

// Configuration errors are returned by NewDAGOrchestrator before any step
// runs. Execution errors are returned by Execute.
var (
	// ErrEmptyStepName indicates a step descriptor with an empty name.
	ErrEmptyStepName = errors.New("step name is empty")

	// ErrDuplicateStep indicates two step descriptors sharing one name.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrNilWork indicates a step descriptor with no work function.
	ErrNilWork = errors.New("step has no work function")

	// ErrUnknownDependency indicates a depends_on entry that names no step
	// in the graph.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrCycleDetected indicates the dependency relation contains a cycle.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrDeadlock indicates steps remain pending but none are ready. This
	// can only happen if validation was bypassed, and is fatal.
	ErrDeadlock = errors.New("scheduling deadlock")

	// ErrStepTimeout indicates a step attempt exceeded its configured
	// timeout. Subject to the step's retry budget.
	ErrStepTimeout = errors.New("step timed out")
)
