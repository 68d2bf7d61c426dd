package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/qaflow/internal/artifacts"
	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/secrets"
	"github.com/fyrsmithlabs/qaflow/internal/telemetry"
	"go.uber.org/zap"
)

// app holds the process-wide services every long-running command needs.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	layout    artifacts.Layout
}

// newApp loads configuration and initializes telemetry and logging.
// override may adjust the loaded config before anything is built from it.
func newApp(ctx context.Context, configPath string, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	if lp := tel.LoggerProvider(); lp != nil {
		logCfg.Output.OTEL = true
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		layout:    artifacts.New(root),
	}, nil
}

// scrubber builds the secret scrubber from config.
func (a *app) scrubber() (secrets.Scrubber, error) {
	if !a.cfg.Scrub.Enabled {
		return secrets.NoopScrubber{}, nil
	}
	allow, err := secrets.LoadAllowlist(a.cfg.Scrub.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading scrub allowlist: %w", err)
	}
	s, err := secrets.New(allow)
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}
	return s, nil
}

// targetDir resolves the clone directory against the project root.
func (a *app) targetDir() string {
	if filepath.IsAbs(a.cfg.Repo.TargetDir) {
		return a.cfg.Repo.TargetDir
	}
	return filepath.Join(a.layout.Root, a.cfg.Repo.TargetDir)
}

// Close flushes telemetry and logs.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.telemetry.Shutdown(ctx), a.logger.Sync())
}
