package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/stepflow-io/stepflow/internal/metrics"
)

// DefaultMaxConcurrency is the default capacity of the shared concurrency
// gate bounding how many step bodies execute at once across a whole run.
const DefaultMaxConcurrency = 10

// Option configures a DAGOrchestrator.
type Option func(*DAGOrchestrator)

// WithMaxConcurrency overrides the concurrency-gate capacity. Values below
// one fall back to DefaultMaxConcurrency.
func WithMaxConcurrency(n int64) Option {
	return func(o *DAGOrchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *DAGOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *DAGOrchestrator) {
		o.collector = collector
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider used for
// execution and step spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *DAGOrchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// DAGOrchestrator executes a validated dependency graph of steps.
//
// Scheduling is wavefront-based: the engine repeatedly computes the set of
// pending steps whose dependencies have all resolved, launches that set
// concurrently under the shared concurrency gate, and folds the outcomes
// into the accumulated result map at the wavefront boundary. Steps in the
// same wavefront have no guaranteed relative order; across wavefronts,
// ordering follows the dependency edges and nothing else.
//
// An orchestrator executes one graph at a time; reuse across sequential
// Execute calls is permitted, and each call owns a fresh execution state.
type DAGOrchestrator struct {
	graph          *graph
	maxConcurrency int64
	logger         *zap.Logger
	collector      *metrics.Collector
	tracer         trace.Tracer

	// runMu serializes Execute calls on one instance.
	runMu sync.Mutex

	mu         sync.RWMutex
	lastReport *ExecutionReport
}

// NewDAGOrchestrator validates the step graph and returns an orchestrator
// ready to execute it. Validation covers empty or duplicate names, missing
// work functions, unknown dependency references, and cycles; a graph that
// fails validation never begins execution.
func NewDAGOrchestrator(steps []Step, opts ...Option) (*DAGOrchestrator, error) {
	g, err := newGraph(steps)
	if err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	o := &DAGOrchestrator{
		graph:          g,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "dag_orchestrator"))
	if o.tracer == nil {
		o.tracer = defaultTracer()
	}

	return o, nil
}

// StepNames returns the names of all steps in declaration order.
func (o *DAGOrchestrator) StepNames() []string {
	return o.graph.names()
}

// LastReport returns the report of the most recent Execute call, or nil if
// the orchestrator has never run.
func (o *DAGOrchestrator) LastReport() *ExecutionReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastReport
}

// executionState is owned exclusively by one Execute call and discarded
// after it returns.
type executionState struct {
	pending   map[string]struct{}
	completed map[string]any
	outcomes  map[string]StepOutcome
}

func newExecutionState(g *graph, initial map[string]any) *executionState {
	state := &executionState{
		pending:   make(map[string]struct{}, len(g.steps)),
		completed: make(map[string]any, len(g.steps)+len(initial)),
		outcomes:  make(map[string]StepOutcome, len(g.steps)),
	}
	for name := range g.steps {
		state.pending[name] = struct{}{}
	}
	for key, value := range initial {
		state.completed[key] = value
	}
	return state
}

// readySteps returns the pending steps whose every dependency is a key in
// the completed map, in declaration order.
func (s *executionState) readySteps(g *graph) []*Step {
	var ready []*Step
	for _, name := range g.order {
		if _, isPending := s.pending[name]; !isPending {
			continue
		}
		step := g.steps[name]
		satisfied := true
		for _, dep := range step.DependsOn {
			if _, resolved := s.completed[dep]; !resolved {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, step)
		}
	}
	return ready
}

// record folds one outcome into the state. A failed step resolves to a nil
// result so dependents of non-critical steps can still be scheduled.
func (s *executionState) record(outcome StepOutcome) {
	s.outcomes[outcome.StepName] = outcome
	if outcome.Status == StepCompleted {
		s.completed[outcome.StepName] = outcome.Result
	} else {
		s.completed[outcome.StepName] = nil
	}
	delete(s.pending, outcome.StepName)
}

// Execute runs the graph to completion and returns the accumulated result
// map: one entry per step (the step's value, or nil for a recorded
// non-critical failure) merged with the caller-supplied initial values.
//
// Execute returns an error on context cancellation, on a scheduling
// deadlock, and on the failure of a critical step. When a critical step
// fails, the engine first drains the wavefront it belongs to - already
// dispatched siblings run to completion and appear in the report - and then
// returns the error without merging that wavefront into the result map.
func (o *DAGOrchestrator) Execute(ctx context.Context, initial map[string]any) (map[string]any, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	state := newExecutionState(o.graph, initial)
	report := newExecutionReport()
	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()

	ctx, span := o.startExecutionSpan(ctx, report.ExecutionID, len(o.graph.steps))
	defer span.End()

	runner := &stepRunner{
		gate:      semaphore.NewWeighted(o.maxConcurrency),
		logger:    o.logger,
		collector: o.collector,
		tracer:    o.tracer,
	}

	o.logger.Info("starting DAG execution",
		zap.String("execution_id", report.ExecutionID),
		zap.Int("steps", len(o.graph.steps)),
		zap.Int64("max_concurrency", o.maxConcurrency),
	)

	for len(state.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, o.fail(report, span, err)
		}

		ready := state.readySteps(o.graph)
		if len(ready) == 0 {
			err := fmt.Errorf("%w: no runnable steps among pending %v",
				ErrDeadlock, sortedNames(state.pending))
			return nil, o.fail(report, span, err)
		}

		o.logger.Debug("dispatching wavefront",
			zap.String("execution_id", report.ExecutionID),
			zap.Int("size", len(ready)),
		)
		o.collector.RecordWavefront(len(ready))

		var criticalErr error
		for _, outcome := range o.runWavefront(ctx, runner, ready, state.completed, report) {
			state.record(outcome)
			if outcome.Status != StepFailed {
				continue
			}
			if o.graph.steps[outcome.StepName].Critical && criticalErr == nil {
				criticalErr = fmt.Errorf("critical step %q failed: %w", outcome.StepName, outcome.Err)
			}
		}
		if criticalErr != nil {
			return nil, o.fail(report, span, criticalErr)
		}
	}

	report.complete(nil)
	recordExecutionSpan(span, nil)
	o.collector.RecordExecution(string(ExecutionCompleted), report.Duration)

	o.logger.Info("DAG execution completed",
		zap.String("execution_id", report.ExecutionID),
		zap.Duration("duration", report.Duration),
	)

	return state.completed, nil
}

// runWavefront launches every ready step concurrently and blocks until the
// whole batch has resolved. Outcomes are collected over a buffered channel;
// the completed map is only read while the batch runs, never written.
func (o *DAGOrchestrator) runWavefront(ctx context.Context, runner *stepRunner, ready []*Step, completed map[string]any, report *ExecutionReport) []StepOutcome {
	outcomeCh := make(chan StepOutcome, len(ready))
	var wg sync.WaitGroup

	for _, step := range ready {
		wg.Add(1)
		go func(s *Step) {
			defer wg.Done()
			outcomeCh <- runner.run(ctx, s, completed, report)
		}(step)
	}

	wg.Wait()
	close(outcomeCh)

	outcomes := make([]StepOutcome, 0, len(ready))
	for outcome := range outcomeCh {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// fail finalizes the report and telemetry for a failed execution.
func (o *DAGOrchestrator) fail(report *ExecutionReport, span trace.Span, err error) error {
	report.complete(err)
	recordExecutionSpan(span, err)
	o.collector.RecordExecution(string(ExecutionFailed), report.Duration)

	o.logger.Error("DAG execution failed",
		zap.String("execution_id", report.ExecutionID),
		zap.Duration("duration", report.Duration),
		zap.Error(err),
	)
	return err
}

// Execute is usable directly; this package-level helper mirrors the
// common one-shot case without keeping an orchestrator around.
func Execute(ctx context.Context, steps []Step, initial map[string]any, opts ...Option) (map[string]any, error) {
	o, err := NewDAGOrchestrator(steps, opts...)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, initial)
}
