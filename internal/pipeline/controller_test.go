package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// MockObserver is a mock implementation of Observer.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) StageFinished(ctx context.Context, state RunState, update Update, elapsed time.Duration) {
	m.Called(ctx, state, update, elapsed)
}

func (m *MockObserver) RunFinished(ctx context.Context, state RunState) {
	m.Called(ctx, state)
}

// MockStore is a mock implementation of StateStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, state RunState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// scripted returns a stage that replays the given update and counts calls.
func scripted(id StageID, u Update, calls map[StageID]int) Stage {
	return StageFunc{StageID: id, Fn: func(_ context.Context, _ RunState) Update {
		calls[id]++
		return u
	}}
}

func registerAll(c *Controller, updates map[StageID]Update, calls map[StageID]int) {
	for _, id := range AllStages() {
		u, ok := updates[id]
		if !ok {
			u = Succeeded(id)
		}
		c.Register(scripted(id, u, calls))
	}
}

func TestController_Run_AllSucceed(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "outputs", "final_state.json")}
	logger := logging.NewTestLogger()
	tel := telemetry.NewTestTelemetry()
	c := NewController(store, WithLogger(logger.Logger), WithTracer(tel.Tracer("test")))

	calls := map[StageID]int{}
	registerAll(c, map[StageID]Update{
		StageExtractSpec:     {Stage: StageExtractSpec, Success: true, Routes: []Route{{Name: "login", Path: "/login/"}}},
		StageGenerateTests:   {Stage: StageGenerateTests, Success: true, Scripts: []string{"tests/selenium/test_login.py"}},
		StageGenerateReports: {Stage: StageGenerateReports, Success: true, Reports: []string{"reports/final_report_login.md"}},
	}, calls)

	final, err := c.Run(context.Background(), newTestState())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, final.Outcome)
	assert.True(t, final.FullySucceeded())
	assert.NotNil(t, final.FinishedAt)
	assert.Equal(t, []Route{{Name: "login", Path: "/login/"}}, final.ExtractedRoutes)
	assert.Equal(t, []string{"tests/selenium/test_login.py"}, final.GeneratedTestScriptPaths)
	assert.Equal(t, []string{"reports/final_report_login.md"}, final.FinalReportPaths)
	for _, id := range AllStages() {
		assert.Equal(t, 1, calls[id], "stage %s must run exactly once", id)
	}

	persisted, err := LoadState(store.Path)
	require.NoError(t, err)
	assert.Equal(t, final.RunID, persisted.RunID)
	assert.True(t, persisted.FullySucceeded())

	tel.AssertRunSpan(t, string(OutcomeSuccess), true)
	for _, id := range AllStages() {
		tel.AssertStageSpan(t, string(id), true)
	}
	logger.AssertLogged(t, zapcore.InfoLevel, "pipeline finished")
}

func TestController_Run_StopsAtFirstHardFailure(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	c := NewController(nil, WithTracer(tel.Tracer("test")))
	calls := map[StageID]int{}
	registerAll(c, map[StageID]Update{
		StageProvision: Failed(StageProvision, "Docker build/run failed: port busy"),
	}, calls)

	final, err := c.Run(context.Background(), newTestState())
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, final.Outcome)
	assert.Equal(t, "Docker build/run failed: port busy", final.OverallError)
	assert.Equal(t, 1, calls[StageClone])
	assert.Equal(t, 1, calls[StageProvision])
	assert.Zero(t, calls[StageExtractSpec])
	assert.False(t, final.Status(StageExtractSpec).Ran())

	assert.Equal(t, []string{string(StageClone), string(StageProvision)}, tel.StagesRun())
	tel.AssertStageSpan(t, string(StageClone), true)
	tel.AssertStageSpan(t, string(StageProvision), false)
	tel.AssertRunSpan(t, string(OutcomeError), false)
}

func TestController_Run_TestGenerationPartialFailureProceeds(t *testing.T) {
	c := NewController(nil)
	calls := map[StageID]int{}
	registerAll(c, map[StageID]Update{
		StageGenerateTests: {
			Stage:   StageGenerateTests,
			Error:   "Some Selenium tests failed to generate: Could not fetch HTML for /b/",
			Scripts: []string{"a.py", "c.py"},
		},
	}, calls)

	final, err := c.Run(context.Background(), newTestState())
	require.NoError(t, err)

	assert.Equal(t, 1, calls[StageGenerateReports])
	assert.Equal(t, OutcomeSuccess, final.Outcome)
	assert.False(t, final.FullySucceeded())
	assert.Equal(t, []string{"a.py", "c.py"}, final.GeneratedTestScriptPaths)
}

func TestController_Run_PanicHalts(t *testing.T) {
	c := NewController(nil)
	calls := map[StageID]int{}
	registerAll(c, nil, calls)
	c.Register(StageFunc{StageID: StageGenerateTests, Fn: func(context.Context, RunState) Update {
		panic("nil map write")
	}})

	final, err := c.Run(context.Background(), newTestState())
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, final.Outcome)
	assert.False(t, final.Status(StageGenerateTests).Ran())
	assert.Contains(t, final.OverallError, "pipeline halted in generate_selenium_tests")
	assert.Zero(t, calls[StageGenerateReports])
}

func TestController_Run_RejectsForeignUpdate(t *testing.T) {
	c := NewController(nil)
	calls := map[StageID]int{}
	registerAll(c, map[StageID]Update{
		StageClone: Succeeded(StageProvision),
	}, calls)

	final, err := c.Run(context.Background(), newTestState())
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, final.Outcome)
	assert.False(t, final.Status(StageClone).Ran())
	assert.False(t, final.Status(StageProvision).Ran())
	assert.Zero(t, calls[StageProvision])
}

func TestController_Run_MissingStage(t *testing.T) {
	c := NewController(nil)
	c.Register(StageFunc{StageID: StageClone, Fn: func(context.Context, RunState) Update { return Succeeded(StageClone) }})

	_, err := c.Run(context.Background(), newTestState())
	assert.ErrorIs(t, err, ErrStageNotRegistered)
}

func TestController_Run_Observers(t *testing.T) {
	obs := new(MockObserver)
	obs.On("StageFinished", mock.Anything, mock.Anything, mock.AnythingOfType("pipeline.Update"), mock.Anything).Return()
	obs.On("RunFinished", mock.Anything, mock.MatchedBy(func(s RunState) bool {
		return s.Outcome == OutcomeError
	})).Return()

	c := NewController(nil, WithObserver(obs), WithObserver(nil))
	registerAll(c, map[StageID]Update{
		StageExtractSpec: Failed(StageExtractSpec, "Base spec extraction failed: empty reply"),
	}, map[StageID]int{})

	_, err := c.Run(context.Background(), newTestState())
	require.NoError(t, err)

	obs.AssertNumberOfCalls(t, "StageFinished", 3)
	obs.AssertNumberOfCalls(t, "RunFinished", 1)
	obs.AssertExpectations(t)
}

func TestController_Run_StoreFailure(t *testing.T) {
	store := new(MockStore)
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	c := NewController(store)
	registerAll(c, nil, map[StageID]int{})

	final, err := c.Run(context.Background(), newTestState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, OutcomeSuccess, final.Outcome)
	store.AssertExpectations(t)
}
