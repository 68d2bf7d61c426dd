package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records the spans of a pipeline run in memory.
type TestTelemetry struct {
	*Telemetry

	Recorder *tracetest.SpanRecorder
}

// NewTestTelemetry returns an enabled Telemetry whose tracer feeds Recorder.
// Nothing is installed globally.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	recorder := tracetest.NewSpanRecorder()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(recorder)),
		},
		Recorder: recorder,
	}
}

// RunSpan returns the ended run span, or nil.
func (t *TestTelemetry) RunSpan() trace.ReadOnlySpan {
	return t.span(RunSpanName)
}

// StageSpan returns the ended span of stage, or nil.
func (t *TestTelemetry) StageSpan(stage string) trace.ReadOnlySpan {
	return t.span(StageSpanName(stage))
}

// StagesRun lists the stages whose spans ended, in the order they ended.
func (t *TestTelemetry) StagesRun() []string {
	var stages []string
	for _, s := range t.Recorder.Ended() {
		if stage, ok := stringAttr(s, AttrStage); ok {
			stages = append(stages, stage)
		}
	}
	return stages
}

// AssertStageSpan checks that stage ran under the run span and recorded
// success. A failed stage must carry an error status.
func (t *TestTelemetry) AssertStageSpan(tb testing.TB, stage string, success bool) {
	tb.Helper()
	span := t.StageSpan(stage)
	if span == nil {
		tb.Errorf("no span for stage %q, stages run: %v", stage, t.StagesRun())
		return
	}
	if run := t.RunSpan(); run != nil && span.Parent().SpanID() != run.SpanContext().SpanID() {
		tb.Errorf("stage %q span is not a child of %s", stage, RunSpanName)
	}
	if got, ok := boolAttr(span, AttrSuccess); !ok || got != success {
		tb.Errorf("stage %q: %s=%v (set %v), want %v", stage, AttrSuccess, got, ok, success)
	}
	if failed := span.Status().Code == codes.Error; failed == success {
		tb.Errorf("stage %q: status %v does not match success=%v", stage, span.Status(), success)
	}
}

// AssertRunSpan checks the terminal attributes of the run span.
func (t *TestTelemetry) AssertRunSpan(tb testing.TB, outcome string, fullySucceeded bool) {
	tb.Helper()
	span := t.RunSpan()
	if span == nil {
		tb.Errorf("no %s span recorded", RunSpanName)
		return
	}
	if got, _ := stringAttr(span, AttrOutcome); got != outcome {
		tb.Errorf("%s=%q, want %q", AttrOutcome, got, outcome)
	}
	if got, ok := boolAttr(span, AttrFullySucceeded); !ok || got != fullySucceeded {
		tb.Errorf("%s=%v (set %v), want %v", AttrFullySucceeded, got, ok, fullySucceeded)
	}
}

func (t *TestTelemetry) span(name string) trace.ReadOnlySpan {
	for _, s := range t.Recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func stringAttr(span trace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key && kv.Value.Type() == attribute.STRING {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func boolAttr(span trace.ReadOnlySpan, key string) (bool, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key && kv.Value.Type() == attribute.BOOL {
			return kv.Value.AsBool(), true
		}
	}
	return false, false
}
