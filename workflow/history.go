package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the status of an execution.
type ExecutionStatus string

const (
	// ExecutionRunning indicates the execution is in progress.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionCompleted indicates the execution completed successfully.
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionFailed indicates the execution failed.
	ExecutionFailed ExecutionStatus = "failed"
)

// StepExecution records the execution of a single step, including wall-clock
// boundaries usable to verify scheduling order.
type StepExecution struct {
	StepName  string          `json:"step_name"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Attempts  int             `json:"attempts"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionReport records the complete execution of one Execute call: which
// steps ran, when, with what outcome. A fresh report is created per call.
type ExecutionReport struct {
	ExecutionID string          `json:"execution_id"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Duration    time.Duration   `json:"duration"`
	Status      ExecutionStatus `json:"status"`
	Steps       []*StepExecution `json:"steps"`
	Error       string          `json:"error,omitempty"`

	mu sync.RWMutex
}

// newExecutionReport creates a running report with a fresh execution ID.
func newExecutionReport() *ExecutionReport {
	return &ExecutionReport{
		ExecutionID: uuid.NewString(),
		StartTime:   time.Now(),
		Status:      ExecutionRunning,
		Steps:       make([]*StepExecution, 0),
	}
}

// recordStepStart appends a running step record and returns it. The caller
// completes it via recordStepEnd; the record must not be read concurrently
// until then.
func (r *ExecutionReport) recordStepStart(stepName string) *StepExecution {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := &StepExecution{
		StepName:  stepName,
		StartTime: time.Now(),
		Status:    ExecutionRunning,
	}
	r.Steps = append(r.Steps, step)
	return step
}

// recordStepEnd finalizes a step record from its outcome.
func (r *ExecutionReport) recordStepEnd(step *StepExecution, outcome StepOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	step.EndTime = time.Now()
	step.Duration = step.EndTime.Sub(step.StartTime)
	step.Attempts = outcome.Attempts

	if outcome.Status == StepFailed {
		step.Status = ExecutionFailed
		if outcome.Err != nil {
			step.Error = outcome.Err.Error()
		}
	} else {
		step.Status = ExecutionCompleted
		step.Result = outcome.Result
	}
}

// complete marks the report finished.
func (r *ExecutionReport) complete(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)

	if err != nil {
		r.Status = ExecutionFailed
		r.Error = err.Error()
	} else {
		r.Status = ExecutionCompleted
	}
}

// StepExecutions returns a copy of the per-step records.
func (r *ExecutionReport) StepExecutions() []*StepExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]*StepExecution, len(r.Steps))
	copy(steps, r.Steps)
	return steps
}

// StepByName returns the record for a specific step, or nil if the step
// never started.
func (r *ExecutionReport) StepByName(stepName string) *StepExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, step := range r.Steps {
		if step.StepName == stepName {
			return step
		}
	}
	return nil
}
