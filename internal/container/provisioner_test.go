package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// fakeExecutor records argv and fails or answers by docker subcommand.
type fakeExecutor struct {
	calls   [][]string
	outputs map[string]string
	fail    map[string]error
}

func (f *fakeExecutor) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	sub := ""
	for _, a := range args {
		if a != "docker" {
			sub = a
			break
		}
	}
	if sub == "run" && len(args) > 1 && args[1] == "--rm" {
		sub = "run --rm " + args[len(args)-1]
	}
	if err := f.fail[sub]; err != nil {
		return "", err
	}
	return f.outputs[sub], nil
}

func (f *fakeExecutor) argv() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func testDockerConfig() config.DockerConfig {
	cfg := config.Defaults().Docker
	return cfg
}

func newTestProvisioner(exec *fakeExecutor, sleeps *sleepRecorder, inUse bool, logger *logging.Logger) *Provisioner {
	return NewProvisioner(testDockerConfig(),
		WithExecutor(exec),
		WithSleep(sleeps.sleep),
		WithPortProbe(func(int) bool { return inUse }),
		WithLogger(logger),
	)
}

func TestProvision_FreePort(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("Django==3.2\n\"requests>=2.0\"\n"), 0o644))

	exec := &fakeExecutor{outputs: map[string]string{"run": "abc123\n"}}
	sleeps := &sleepRecorder{}
	p := newTestProvisioner(exec, sleeps, false, nil)

	require.NoError(t, p.Provision(context.Background(), dir, "fst_sandbox_app"))

	db := filepath.Join(dir, "db.sqlite3")
	assert.Equal(t, []string{
		"docker build --no-cache -t fst_sandbox_app " + dir,
		"docker run --rm -v " + dir + ":/app -v " + db + ":/app/db.sqlite3 fst_sandbox_app python manage.py makemigrations",
		"docker run --rm -v " + dir + ":/app -v " + db + ":/app/db.sqlite3 fst_sandbox_app python manage.py migrate",
		"docker run -d -p 8000:8000 -v " + dir + ":/app -v " + db + ":/app/db.sqlite3 fst_sandbox_app",
	}, exec.argv())
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeps.slept)

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, Dockerfile(8000), string(dockerfile))
	assert.Contains(t, string(dockerfile), `CMD ["python", "manage.py", "runserver", "0.0.0.0:8000"]`)

	_, err = os.Stat(db)
	assert.NoError(t, err)

	reqs, err := os.ReadFile(filepath.Join(dir, "requirements.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Django\nrequests\n", string(reqs))
}

func TestProvision_ReclaimsPort(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{outputs: map[string]string{
		"ps": "aaa 0.0.0.0:8000->8000/tcp, [::]:8000->8000/tcp\nbbb 0.0.0.0:5432->5432/tcp\nccc [::]:8000->8000/tcp\n",
	}}
	sleeps := &sleepRecorder{}
	logger := logging.NewTestLogger()
	p := newTestProvisioner(exec, sleeps, true, logger.Logger)

	require.NoError(t, p.Provision(context.Background(), dir, "img"))

	calls := exec.argv()
	assert.Equal(t, "docker ps --format {{.ID}} {{.Ports}}", calls[0])
	assert.Equal(t, "docker rm -f aaa", calls[1])
	assert.Equal(t, "docker rm -f ccc", calls[2])
	assert.True(t, strings.HasPrefix(calls[3], "docker build"))
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 10 * time.Second}, sleeps.slept)
	logger.AssertLogged(t, zapcore.WarnLevel, "requirements.txt not found")
}

func TestProvision_PortBusyWithoutContainer(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{"ps": ""}}
	sleeps := &sleepRecorder{}
	p := newTestProvisioner(exec, sleeps, true, nil)

	require.NoError(t, p.Provision(context.Background(), t.TempDir(), "img"))
	assert.Equal(t, []time.Duration{3 * time.Second, 10 * time.Second}, sleeps.slept)
}

func TestProvision_Failures(t *testing.T) {
	tests := []struct {
		name     string
		fail     map[string]error
		wantKind failure.Kind
		wantOp   string
		calls    int
	}{
		{"build", map[string]error{"build": errors.New("exit status 1")}, failure.KindBuild, "docker build", 1},
		{"first setup", map[string]error{"run --rm makemigrations": errors.New("exit status 2")}, failure.KindRun, "setup python manage.py makemigrations", 2},
		{"second setup", map[string]error{"run --rm migrate": errors.New("exit status 2")}, failure.KindRun, "setup python manage.py migrate", 3},
		{"start", map[string]error{"run": errors.New("port is already allocated")}, failure.KindRun, "docker run", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{fail: tt.fail}
			p := newTestProvisioner(exec, &sleepRecorder{}, false, nil)

			err := p.Provision(context.Background(), t.TempDir(), "img")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, failure.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantOp)
			assert.Len(t, exec.calls, tt.calls)
		})
	}
}

func TestProvision_UseSudo(t *testing.T) {
	cfg := testDockerConfig()
	cfg.UseSudo = true
	cfg.SetupCommands = nil
	exec := &fakeExecutor{}
	p := NewProvisioner(cfg, WithExecutor(exec), WithSleep((&sleepRecorder{}).sleep), WithPortProbe(func(int) bool { return false }))

	require.NoError(t, p.Provision(context.Background(), t.TempDir(), "img"))
	for _, call := range exec.calls {
		assert.Equal(t, []string{"sudo", "docker"}, call[:2])
	}
	assert.Len(t, exec.calls, 2)
}

func TestProvision_CancelledDuringStartup(t *testing.T) {
	cfg := testDockerConfig()
	p := NewProvisioner(cfg, WithExecutor(&fakeExecutor{}), WithPortProbe(func(int) bool { return false }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Provision(ctx, t.TempDir(), "img")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConflictingContainers(t *testing.T) {
	out := "a1 0.0.0.0:8000->8000/tcp\nb2 0.0.0.0:18000->8000/tcp\nc3 [::]:8000->8000/tcp\n\n"
	assert.Equal(t, []string{"a1", "c3"}, conflictingContainers(out, 8000))
	assert.Empty(t, conflictingContainers("", 8000))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
