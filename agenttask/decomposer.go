package agenttask

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stepflow-io/stepflow/internal/metrics"
	"github.com/stepflow-io/stepflow/workflow"
)

// Subtask is one independent unit of a decomposed task.
type Subtask struct {
	// ID identifies the subtask within its parent task.
	ID string
	// Run executes the subtask and returns its output.
	Run func(ctx context.Context) (string, error)
}

// SubtaskResult records one subtask's resolution.
type SubtaskResult struct {
	// ID is the subtask identifier.
	ID string `json:"id"`
	// Output is the subtask's output when it succeeded.
	Output string `json:"output,omitempty"`
	// Error is the failure message when it did not.
	Error string `json:"error,omitempty"`
}

// Result aggregates one Decompose run.
type Result struct {
	// Task is the parent task description.
	Task string `json:"task"`
	// Total is the number of subtasks submitted.
	Total int `json:"total"`
	// Succeeded is the number of subtasks that completed.
	Succeeded int `json:"succeeded"`
	// Failed is the number of subtasks that returned an error or panicked.
	Failed int `json:"failed"`
	// Subtasks holds per-subtask results in completion order.
	Subtasks []SubtaskResult `json:"subtasks"`
}

// Outputs returns the outputs of successful subtasks keyed by subtask ID.
func (r *Result) Outputs() map[string]string {
	outputs := make(map[string]string, r.Succeeded)
	for _, sub := range r.Subtasks {
		if sub.Error == "" {
			outputs[sub.ID] = sub.Output
		}
	}
	return outputs
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithMaxConcurrency bounds how many subtasks run at once.
func WithMaxConcurrency(n int) Option {
	return func(d *Decomposer) {
		if n > 0 {
			d.maxConcurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decomposer) {
		if logger != nil {
			d.logger = logger.With(zap.String("component", "agenttask"))
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(d *Decomposer) {
		d.collector = collector
	}
}

// Decomposer runs the independent subtasks of a decomposed task under
// bounded concurrency and aggregates their outputs. Subtask failures are
// recorded per subtask and never abort the batch.
type Decomposer struct {
	logger         *zap.Logger
	collector      *metrics.Collector
	maxConcurrency int
}

// NewDecomposer creates a task decomposer.
func NewDecomposer(opts ...Option) *Decomposer {
	d := &Decomposer{
		logger:         zap.NewNop(),
		maxConcurrency: workflow.DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose runs every subtask concurrently and returns the aggregated
// result. Subtasks must be mutually independent; for inter-dependent work
// build a step graph instead.
func (d *Decomposer) Decompose(ctx context.Context, task string, subtasks []Subtask) (*Result, error) {
	for i, sub := range subtasks {
		if sub.ID == "" {
			return nil, fmt.Errorf("subtask at index %d has no ID", i)
		}
		if sub.Run == nil {
			return nil, fmt.Errorf("subtask %q has no run function", sub.ID)
		}
	}

	d.logger.Info("decomposing task",
		zap.String("task", task),
		zap.Int("subtasks", len(subtasks)),
		zap.Int("max_concurrency", d.maxConcurrency),
	)

	// Failures are folded into the SubtaskResult so the ID survives; the
	// fan-out op itself never errors.
	fanout := workflow.FanOut(ctx, subtasks, func(ctx context.Context, sub Subtask) (SubtaskResult, error) {
		output, err := runSubtask(ctx, sub)
		if err != nil {
			return SubtaskResult{ID: sub.ID, Error: err.Error()}, nil
		}
		return SubtaskResult{ID: sub.ID, Output: output}, nil
	}, d.maxConcurrency)

	result := &Result{
		Task:     task,
		Total:    fanout.Total,
		Subtasks: fanout.Results,
	}
	for _, sub := range result.Subtasks {
		if sub.Error == "" {
			result.Succeeded++
		} else {
			result.Failed++
			d.logger.Warn("subtask failed",
				zap.String("task", task),
				zap.String("subtask", sub.ID),
				zap.String("error", sub.Error),
			)
		}
	}

	d.collector.RecordFanOut("agent_task", result.Succeeded, result.Failed)

	d.logger.Info("task decomposition finished",
		zap.String("task", task),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// runSubtask invokes the subtask with panic capture.
func runSubtask(ctx context.Context, sub Subtask) (output string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("subtask %q panicked: %v", sub.ID, p)
		}
	}()
	return sub.Run(ctx)
}
