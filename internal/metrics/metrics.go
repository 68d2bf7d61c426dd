// Package metrics exposes Prometheus counters for pipeline runs.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the pipeline collectors. It implements pipeline.Observer.
type Metrics struct {
	StageRunsTotal     *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	RouteFailuresTotal *prometheus.CounterVec
	PipelineRunsTotal  *prometheus.CounterVec
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors with the default registry once and
// returns the shared instance.
//
// Metrics:
//   - qaflow_stage_runs_total{stage,result}
//   - qaflow_stage_duration_seconds{stage}
//   - qaflow_route_failures_total{stage}
//   - qaflow_pipeline_runs_total{outcome}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StageRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qaflow_stage_runs_total",
					Help: "Total number of stage executions by result",
				},
				[]string{"stage", "result"}, // result: success or error
			),
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "qaflow_stage_duration_seconds",
					Help:    "Duration of stage execution in seconds",
					Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
				},
				[]string{"stage"},
			),
			RouteFailuresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qaflow_route_failures_total",
					Help: "Total number of routes that failed within a per-route stage",
				},
				[]string{"stage"},
			),
			PipelineRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qaflow_pipeline_runs_total",
					Help: "Total number of pipeline runs by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return globalMetrics
}

// StageFinished implements pipeline.Observer.
func (m *Metrics) StageFinished(_ context.Context, _ pipeline.RunState, u pipeline.Update, elapsed time.Duration) {
	stage := string(u.Stage)
	result := string(pipeline.OutcomeSuccess)
	if !u.Success {
		result = string(pipeline.OutcomeError)
	}
	m.StageRunsTotal.WithLabelValues(stage, result).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if u.RouteFailures > 0 {
		m.RouteFailuresTotal.WithLabelValues(stage).Add(float64(u.RouteFailures))
	}
}

// RunFinished implements pipeline.Observer.
func (m *Metrics) RunFinished(_ context.Context, state pipeline.RunState) {
	outcome := state.Outcome
	if outcome == "" {
		outcome = pipeline.OutcomeError
	}
	m.PipelineRunsTotal.WithLabelValues(string(outcome)).Inc()
}

// WriteTextfile writes the default registry in the node-exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
