package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Singleton(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestMetrics_StageFinished(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()
	stage := string(pipeline.StageGenerateTests)

	okBefore := testutil.ToFloat64(m.StageRunsTotal.WithLabelValues(stage, "success"))
	errBefore := testutil.ToFloat64(m.StageRunsTotal.WithLabelValues(stage, "error"))
	routesBefore := testutil.ToFloat64(m.RouteFailuresTotal.WithLabelValues(stage))

	m.StageFinished(ctx, pipeline.RunState{}, pipeline.Succeeded(pipeline.StageGenerateTests), time.Second)

	partial := pipeline.Failed(pipeline.StageGenerateTests, "Some Selenium tests failed to generate: Could not fetch HTML for /login/")
	partial.RouteFailures = 1
	m.StageFinished(ctx, pipeline.RunState{}, partial, 2*time.Second)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.StageRunsTotal.WithLabelValues(stage, "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.StageRunsTotal.WithLabelValues(stage, "error")))
	assert.Equal(t, routesBefore+1, testutil.ToFloat64(m.RouteFailuresTotal.WithLabelValues(stage)))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(m.StageDuration), 1)
}

func TestMetrics_RunFinished(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	successBefore := testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("success"))
	errorBefore := testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("error"))

	m.RunFinished(ctx, pipeline.RunState{Outcome: pipeline.OutcomeSuccess})
	m.RunFinished(ctx, pipeline.RunState{Outcome: pipeline.OutcomeError})
	m.RunFinished(ctx, pipeline.RunState{})

	assert.Equal(t, successBefore+1, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("success")))
	assert.Equal(t, errorBefore+2, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("error")))
}

func TestWriteTextfile(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))

	m := NewMetrics()
	m.RunFinished(context.Background(), pipeline.RunState{Outcome: pipeline.OutcomeSuccess})

	path := filepath.Join(t.TempDir(), "qaflow.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "qaflow_pipeline_runs_total")
}

func TestWriteTextfile_BadDir(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "qaflow.prom"))
	assert.ErrorContains(t, err, "writing metrics textfile")
}
