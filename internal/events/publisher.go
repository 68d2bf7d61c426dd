// Package events publishes pipeline progress to NATS.
//
// Subjects:
//
//	{prefix}.{run_id}.{stage}.finished
//	{prefix}.{run_id}.terminal
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// StageEvent is published after each stage.
type StageEvent struct {
	RunID     string           `json:"run_id"`
	Stage     pipeline.StageID `json:"stage"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	ElapsedMs int64            `json:"elapsed_ms"`
	Timestamp time.Time        `json:"timestamp"`
}

// TerminalEvent is published once when a run reaches a terminal node.
type TerminalEvent struct {
	RunID        string            `json:"run_id"`
	Outcome      pipeline.Outcome  `json:"outcome"`
	OverallError string            `json:"overall_error,omitempty"`
	ReportPaths  []string          `json:"report_paths"`
	State        pipeline.RunState `json:"state"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Publisher implements pipeline.Observer over a NATS connection.
// Publish failures are logged and never affect the run.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

var _ pipeline.Observer = (*Publisher)(nil)

// Connect dials url and returns a Publisher.
func Connect(url, prefix string, logger *logging.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("qaflow"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return NewPublisher(nc, prefix, logger), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Nop()
	}
	if prefix == "" {
		prefix = "qaflow"
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// StageSubject returns the subject for a stage event.
func (p *Publisher) StageSubject(runID string, stage pipeline.StageID) string {
	return fmt.Sprintf("%s.%s.%s.finished", p.prefix, runID, stage)
}

// TerminalSubject returns the subject for the terminal event.
func (p *Publisher) TerminalSubject(runID string) string {
	return fmt.Sprintf("%s.%s.terminal", p.prefix, runID)
}

// StageFinished implements pipeline.Observer.
func (p *Publisher) StageFinished(ctx context.Context, state pipeline.RunState, u pipeline.Update, elapsed time.Duration) {
	p.publish(ctx, p.StageSubject(state.RunID, u.Stage), StageEvent{
		RunID:     state.RunID,
		Stage:     u.Stage,
		Success:   u.Success,
		Error:     u.Error,
		ElapsedMs: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
}

// RunFinished implements pipeline.Observer.
func (p *Publisher) RunFinished(ctx context.Context, state pipeline.RunState) {
	p.publish(ctx, p.TerminalSubject(state.RunID), TerminalEvent{
		RunID:        state.RunID,
		Outcome:      state.Outcome,
		OverallError: state.OverallError,
		ReportPaths:  state.FinalReportPaths,
		State:        state,
		Timestamp:    time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn(ctx, "marshal event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn(ctx, "publish event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.logger.Debug(ctx, "event published", zap.String("subject", subject))
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil && p.nc.IsConnected() {
		p.nc.Close()
		return fmt.Errorf("flush events: %w", err)
	}
	p.nc.Close()
	return nil
}
