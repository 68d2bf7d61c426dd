package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunSpanName is the root span of one pipeline run; every stage span is its
// child.
const RunSpanName = "pipeline.run"

const stageSpanPrefix = "pipeline."

// Span attribute keys.
const (
	AttrRunID          = "run.id"
	AttrRepoURL        = "repo.url"
	AttrStage          = "stage"
	AttrSuccess        = "success"
	AttrOutcome        = "outcome"
	AttrFullySucceeded = "fully_succeeded"
)

// StageSpanName names the span of one stage execution, e.g.
// "pipeline.clone_repo".
func StageSpanName(stage string) string {
	return stageSpanPrefix + stage
}

// StartRun opens the root span of a run.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, repoURL string) (context.Context, trace.Span) {
	return tracer.Start(ctx, RunSpanName, trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrRepoURL, repoURL),
	))
}

// StartStage opens the span of one stage.
func StartStage(ctx context.Context, tracer trace.Tracer, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, StageSpanName(stage), trace.WithAttributes(
		attribute.String(AttrStage, stage),
	))
}

// FinishStage records a stage result on its span. A failed stage marks the
// span as an error carrying the stage's error text.
func FinishStage(span trace.Span, success bool, errText string) {
	span.SetAttributes(attribute.Bool(AttrSuccess, success))
	if !success {
		span.SetStatus(codes.Error, errText)
	}
}

// FinishRun records the terminal outcome on the run span.
func FinishRun(span trace.Span, outcome string, fullySucceeded bool, errText string) {
	span.SetAttributes(
		attribute.String(AttrOutcome, outcome),
		attribute.Bool(AttrFullySucceeded, fullySucceeded),
	)
	if errText != "" {
		span.SetStatus(codes.Error, errText)
	}
}
