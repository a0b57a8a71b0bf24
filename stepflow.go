// Package stepflow provides a top-level convenience entry point for running
// dependency-aware step graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/stepflow-io/stepflow"
//
//	results, err := stepflow.Run(ctx,
//	    []stepflow.Step{
//	        stepflow.NewStep("fetch", fetchWork),
//	        stepflow.NewStep("render", renderWork, "fetch"),
//	    },
//	    nil,
//	)
//
// This is a thin wrapper around [workflow.Execute]; both produce identical
// results. Use this package when you prefer the shorter import path.
package stepflow

import (
	"context"

	"github.com/stepflow-io/stepflow/workflow"
)

// Step is a declarative step descriptor.
type Step = workflow.Step

// WorkFunc is a step's unit of work.
type WorkFunc = workflow.WorkFunc

// Option configures the orchestrator created by [Run] or [New].
type Option = workflow.Option

// NewStep creates a critical step with no timeout and no retries.
func NewStep(name string, work WorkFunc, dependsOn ...string) Step {
	return workflow.NewStep(name, work, dependsOn...)
}

// New creates a [workflow.DAGOrchestrator], validating the graph.
func New(steps []Step, opts ...Option) (*workflow.DAGOrchestrator, error) {
	return workflow.NewDAGOrchestrator(steps, opts...)
}

// Run validates and executes a step graph in one call.
func Run(ctx context.Context, steps []Step, initial map[string]any, opts ...Option) (map[string]any, error) {
	return workflow.Execute(ctx, steps, initial, opts...)
}

// Re-export orchestrator options so callers never need to import workflow/.

// WithMaxConcurrency overrides the shared concurrency gate capacity.
var WithMaxConcurrency = workflow.WithMaxConcurrency

// WithLogger sets a custom zap logger.
var WithLogger = workflow.WithLogger

// WithMetrics attaches a prometheus metrics collector.
var WithMetrics = workflow.WithMetrics

// WithTracerProvider sets the OpenTelemetry tracer provider.
var WithTracerProvider = workflow.WithTracerProvider
