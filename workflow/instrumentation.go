package workflow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/stepflow-io/stepflow/workflow"

func defaultTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

func (o *DAGOrchestrator) startExecutionSpan(ctx context.Context, executionID string, stepCount int) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "workflow.Execute",
		trace.WithAttributes(
			attribute.String("stepflow.execution.id", executionID),
			attribute.Int("stepflow.execution.steps", stepCount),
		),
	)
}

func recordExecutionSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (r *stepRunner) startStepSpan(ctx context.Context, step *Step) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "workflow.Step",
		trace.WithAttributes(
			attribute.String("stepflow.step.name", step.Name),
			attribute.Bool("stepflow.step.critical", step.Critical),
		),
	)
}

func recordStepSpan(span trace.Span, outcome StepOutcome) {
	span.SetAttributes(
		attribute.String("stepflow.step.status", string(outcome.Status)),
		attribute.Int("stepflow.step.attempts", outcome.Attempts),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	span.End()
}
