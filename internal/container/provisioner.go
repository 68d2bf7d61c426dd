// Package container builds the repository under test into a Docker image and
// starts it on the configured port.
package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"go.uber.org/zap"
)

const dockerfileTemplate = `FROM python:3.11-slim

WORKDIR /app

COPY . .

RUN pip install --no-cache-dir -r requirements.txt

EXPOSE %[1]d

CMD ["python", "manage.py", "runserver", "0.0.0.0:%[1]d"]
`

// Dockerfile returns the Dockerfile written into the repository.
func Dockerfile(port int) string {
	return fmt.Sprintf(dockerfileTemplate, port)
}

// Provisioner prepares and starts the application container.
type Provisioner struct {
	cfg    config.DockerConfig
	exec   Executor
	logger *logging.Logger

	probe func(port int) bool
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithExecutor replaces the os/exec command runner.
func WithExecutor(e Executor) Option {
	return func(p *Provisioner) { p.exec = e }
}

// WithLogger sets the logger. Nil keeps the current one.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPortProbe replaces the localhost TCP probe.
func WithPortProbe(probe func(port int) bool) Option {
	return func(p *Provisioner) { p.probe = probe }
}

// WithSleep replaces the context-aware delay.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Provisioner) { p.sleep = sleep }
}

// NewProvisioner creates a Provisioner from docker settings.
func NewProvisioner(cfg config.DockerConfig, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:    cfg,
		exec:   ExecExecutor{},
		logger: logging.Nop(),
		probe:  portInUse,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision reclaims the port, builds image from dir, runs the setup
// commands and starts the service detached. There is no rollback: a
// failure leaves whatever was already created in place.
func (p *Provisioner) Provision(ctx context.Context, dir, image string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return failure.New(failure.KindBuild, "resolve target dir", err)
	}
	absDB := filepath.Join(absDir, "db.sqlite3")

	if err := p.reclaimPort(ctx); err != nil {
		return err
	}

	if err := p.prepare(ctx, absDir, absDB); err != nil {
		return failure.New(failure.KindBuild, "prepare build context", err)
	}

	p.logger.Info(ctx, "building image", zap.String("image", image))
	if _, err := p.docker(ctx, "build", "--no-cache", "-t", image, absDir); err != nil {
		return failure.New(failure.KindBuild, "docker build", err)
	}

	mounts := []string{"-v", absDir + ":/app", "-v", absDB + ":/app/db.sqlite3"}
	for _, setup := range p.cfg.SetupCommands {
		args := append(append([]string{"run", "--rm"}, mounts...), image)
		args = append(args, setup...)
		p.logger.Info(ctx, "running setup command", zap.Strings("command", setup))
		if _, err := p.docker(ctx, args...); err != nil {
			return failure.New(failure.KindRun, "setup "+strings.Join(setup, " "), err)
		}
	}

	port := strconv.Itoa(p.cfg.Port)
	args := append(append([]string{"run", "-d", "-p", port + ":" + port}, mounts...), image)
	id, err := p.docker(ctx, args...)
	if err != nil {
		return failure.New(failure.KindRun, "docker run", err)
	}
	p.logger.Info(ctx, "container started", zap.String("container", strings.TrimSpace(id)), zap.Int("port", p.cfg.Port))

	if err := p.sleep(ctx, p.cfg.StartupDelay.Duration()); err != nil {
		return failure.New(failure.KindRun, "wait for startup", err)
	}
	return nil
}

// reclaimPort removes containers publishing the configured port.
func (p *Provisioner) reclaimPort(ctx context.Context) error {
	if !p.probe(p.cfg.Port) {
		p.logger.Debug(ctx, "port is free", zap.Int("port", p.cfg.Port))
		return nil
	}

	p.logger.Info(ctx, "port in use, removing conflicting containers", zap.Int("port", p.cfg.Port))
	out, err := p.docker(ctx, "ps", "--format", "{{.ID}} {{.Ports}}")
	if err != nil {
		return failure.New(failure.KindRun, "docker ps", err)
	}

	removed := 0
	for _, id := range conflictingContainers(out, p.cfg.Port) {
		p.logger.Info(ctx, "removing container", zap.String("container", id))
		if _, err := p.docker(ctx, "rm", "-f", id); err != nil {
			return failure.New(failure.KindRun, "docker rm", err)
		}
		removed++
	}

	if removed > 0 {
		if err := p.sleep(ctx, p.cfg.PortReleaseDelay.Duration()); err != nil {
			return failure.New(failure.KindRun, "wait for port release", err)
		}
	} else {
		p.logger.Warn(ctx, "no container publishes the port", zap.Int("port", p.cfg.Port))
	}
	if err := p.sleep(ctx, p.cfg.PortSettleDelay.Duration()); err != nil {
		return failure.New(failure.KindRun, "wait for port release", err)
	}
	return nil
}

// conflictingContainers returns ids from `docker ps` lines that publish port.
func conflictingContainers(psOutput string, port int) []string {
	v4 := fmt.Sprintf("0.0.0.0:%d", port)
	v6 := fmt.Sprintf("[::]:%d", port)

	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(psOutput), "\n") {
		if !strings.Contains(line, v4) && !strings.Contains(line, v6) {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			ids = append(ids, fields[0])
		}
	}
	return ids
}

// prepare creates the database file, writes the Dockerfile and cleans
// requirements.txt.
func (p *Provisioner) prepare(ctx context.Context, dir, dbPath string) error {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(dbPath, nil, 0o644); err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		p.logger.Info(ctx, "created empty database", zap.String("path", dbPath))
	}

	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(Dockerfile(p.cfg.Port)), 0o644); err != nil {
		return fmt.Errorf("writing Dockerfile: %w", err)
	}

	reqPath := filepath.Join(dir, "requirements.txt")
	if err := CleanRequirements(reqPath); err != nil {
		if !errors.Is(err, ErrRequirementsNotFound) {
			return err
		}
		p.logger.Warn(ctx, "requirements.txt not found, skipping cleaning", zap.String("path", reqPath))
	}
	return nil
}

// docker runs the docker binary, under sudo when configured.
func (p *Provisioner) docker(ctx context.Context, args ...string) (string, error) {
	name := p.cfg.Binary
	if p.cfg.UseSudo {
		args = append([]string{p.cfg.Binary}, args...)
		name = "sudo"
	}
	p.logger.Trace(ctx, "exec", zap.String("cmd", name), zap.Strings("args", args))
	return p.exec.Run(ctx, name, args...)
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
