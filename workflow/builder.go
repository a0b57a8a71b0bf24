package workflow

import (
	"time"

	"go.uber.org/zap"
)

// Builder provides a fluent API for assembling a step graph.
//
//	orch, err := workflow.NewBuilder("ingest").
//		Step("fetch", fetchWork).Done().
//		Step("parse", parseWork).DependsOn("fetch").WithTimeout(5 * time.Second).Done().
//		Step("report", reportWork).DependsOn("parse").NonCritical().Done().
//		Build()
//
// Build runs the same validation as NewDAGOrchestrator.
type Builder struct {
	name   string
	steps  []*Step
	logger *zap.Logger
}

// NewBuilder creates a builder for a named graph.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// WithLogger sets the logger passed to the built orchestrator.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Step adds a critical step with no dependencies and returns a StepBuilder
// for further configuration.
func (b *Builder) Step(name string, work WorkFunc) *StepBuilder {
	step := NewStep(name, work)
	b.steps = append(b.steps, &step)
	return &StepBuilder{
		step:   &step,
		parent: b,
	}
}

// Steps returns the steps declared so far.
func (b *Builder) Steps() []Step {
	steps := make([]Step, 0, len(b.steps))
	for _, step := range b.steps {
		steps = append(steps, *step)
	}
	return steps
}

// Build validates the graph and creates the orchestrator.
func (b *Builder) Build(opts ...Option) (*DAGOrchestrator, error) {
	if b.logger != nil {
		opts = append([]Option{WithLogger(b.logger.With(zap.String("graph", b.name)))}, opts...)
	}
	return NewDAGOrchestrator(b.Steps(), opts...)
}

// StepBuilder configures one step within a Builder.
type StepBuilder struct {
	step   *Step
	parent *Builder
}

// DependsOn declares the steps that must resolve before this one starts.
func (sb *StepBuilder) DependsOn(names ...string) *StepBuilder {
	sb.step.DependsOn = append(sb.step.DependsOn, names...)
	return sb
}

// NonCritical marks the step's failure as recordable rather than fatal.
func (sb *StepBuilder) NonCritical() *StepBuilder {
	sb.step.Critical = false
	return sb
}

// WithTimeout bounds a single attempt of the step's work.
func (sb *StepBuilder) WithTimeout(timeout time.Duration) *StepBuilder {
	sb.step.Timeout = timeout
	return sb
}

// WithRetries sets the number of additional attempts after a timeout.
func (sb *StepBuilder) WithRetries(retries int) *StepBuilder {
	sb.step.Retries = retries
	return sb
}

// Done completes step configuration and returns to the Builder.
func (sb *StepBuilder) Done() *Builder {
	return sb.parent
}
