package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/qaflow/internal/pipeline"

// Observer is notified after every stage and once at the terminal node.
// Implementations must not block the run for long and must not panic.
type Observer interface {
	StageFinished(ctx context.Context, state RunState, update Update, elapsed time.Duration)
	RunFinished(ctx context.Context, state RunState)
}

// Controller runs the stages in order and routes between them.
type Controller struct {
	stages    map[StageID]Stage
	store     StateStore
	observers []Observer
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithObserver adds an observer. Nil observers are ignored.
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *logging.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(t trace.Tracer) ControllerOption {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewController creates a controller persisting the final state to store.
func NewController(store StateStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		stages: make(map[StageID]Stage),
		store:  store,
		logger: logging.Nop(),
		tracer: otel.Tracer(instrumentationName),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a stage handler, replacing any previous handler for its ID.
func (c *Controller) Register(stage Stage) {
	c.stages[stage.ID()] = stage
}

// Run executes the pipeline from StageClone until a terminal node.
//
// Stage failures are recorded in the returned state and never surface as
// errors. The returned error is non-nil only when the pipeline is
// misconfigured or the final state cannot be persisted.
func (c *Controller) Run(ctx context.Context, state RunState) (RunState, error) {
	for _, id := range AllStages() {
		if _, ok := c.stages[id]; !ok {
			return state, fmt.Errorf("%w: %s", ErrStageNotRegistered, id)
		}
	}

	ctx = logging.WithRunID(ctx, state.RunID)
	ctx, span := telemetry.StartRun(ctx, c.tracer, state.RunID, state.RepoURL)
	defer span.End()

	c.logger.Info(ctx, "pipeline started",
		zap.String("repo_url", state.RepoURL),
		zap.String("target_dir", state.TargetDir),
		zap.String("image", state.ImageName),
	)

	node := StageClone
	for !node.IsTerminal() {
		next, err := c.runStage(ctx, c.stages[node], state)
		if err != nil {
			c.logger.Error(ctx, "pipeline halted", zap.String("stage", string(node)), zap.Error(err))
			span.RecordError(err)
			next = state.clone()
			next.OverallError = fmt.Sprintf("pipeline halted in %s: %v", node, err)
			state = next
			node = EndError
			break
		}
		state = next
		node = Next(node, state)
	}

	return c.finish(ctx, span, state, node)
}

// runStage executes one stage inside its own span and merges its update.
func (c *Controller) runStage(ctx context.Context, stage Stage, state RunState) (RunState, error) {
	id := stage.ID()
	ctx = logging.WithStage(ctx, string(id))
	ctx, span := telemetry.StartStage(ctx, c.tracer, string(id))
	defer span.End()

	c.logger.Info(ctx, "stage started")
	start := time.Now()

	update, err := execute(ctx, stage, state)
	if err == nil {
		state, err = state.Apply(update)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	elapsed := time.Since(start)
	telemetry.FinishStage(span, update.Success, update.Error)
	if update.Success {
		c.logger.Info(ctx, "stage succeeded", zap.Duration("elapsed", elapsed))
	} else {
		c.logger.Warn(ctx, "stage failed", zap.Duration("elapsed", elapsed), zap.String("error", update.Error))
	}

	for _, o := range c.observers {
		o.StageFinished(ctx, state, update, elapsed)
	}
	return state, nil
}

// execute calls the stage, converting a panic into an error.
func execute(ctx context.Context, stage Stage, state RunState) (u Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanicked, r)
		}
	}()

	u = stage.Execute(ctx, state)
	if u.Stage == "" {
		u.Stage = stage.ID()
	}
	if u.Stage != stage.ID() {
		return Update{}, fmt.Errorf("%w: %s returned an update for %s", ErrUnauthorizedWrite, stage.ID(), u.Stage)
	}
	return u, nil
}

// finish is the terminal aggregator: stamp, persist, notify.
func (c *Controller) finish(ctx context.Context, span trace.Span, state RunState, node StageID) (RunState, error) {
	final := state.clone()
	final.Outcome = OutcomeError
	if node == EndSuccess {
		final.Outcome = OutcomeSuccess
	}
	finished := c.now()
	final.FinishedAt = &finished

	var errText string
	if final.Outcome == OutcomeError {
		errText = final.OverallError
		if errText == "" {
			errText = "pipeline ended in " + string(EndError)
		}
	}
	telemetry.FinishRun(span, string(final.Outcome), final.FullySucceeded(), errText)

	c.logger.Info(ctx, "pipeline finished",
		zap.String("outcome", string(final.Outcome)),
		zap.Bool("fully_succeeded", final.FullySucceeded()),
		zap.Int("routes", len(final.ExtractedRoutes)),
		zap.Int("scripts", len(final.GeneratedTestScriptPaths)),
		zap.Int("reports", len(final.FinalReportPaths)),
	)

	for _, o := range c.observers {
		o.RunFinished(ctx, final)
	}

	if c.store != nil {
		if err := c.store.Save(ctx, final); err != nil {
			c.logger.Error(ctx, "failed to persist final state", zap.Error(err))
			return final, fmt.Errorf("persisting final state: %w", err)
		}
	}
	return final, nil
}
