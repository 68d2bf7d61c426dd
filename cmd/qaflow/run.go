package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/fyrsmithlabs/qaflow/internal/container"
	"github.com/fyrsmithlabs/qaflow/internal/events"
	"github.com/fyrsmithlabs/qaflow/internal/fetch"
	"github.com/fyrsmithlabs/qaflow/internal/llm"
	"github.com/fyrsmithlabs/qaflow/internal/metrics"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/fyrsmithlabs/qaflow/internal/repo"
	"github.com/fyrsmithlabs/qaflow/internal/runner"
	"github.com/fyrsmithlabs/qaflow/internal/stages"
	"github.com/fyrsmithlabs/qaflow/internal/summary"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	repo        string
	targetDir   string
	image       string
	projectRoot string
}

func (f runFlags) apply(cfg *config.Config) {
	if f.repo != "" {
		cfg.Repo.URL = f.repo
	}
	if f.targetDir != "" {
		cfg.Repo.TargetDir = f.targetDir
	}
	if f.image != "" {
		cfg.Docker.ImageName = f.image
	}
	if f.projectRoot != "" {
		cfg.Project.Root = f.projectRoot
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full QA pipeline",
		Long: `Run clones the repository, starts it with Docker, extracts the functional
specification, generates and runs Selenium tests and writes one report per
page. The exit code is 1 unless every stage succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, flags.apply)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			final, err := runPipeline(ctx, a, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !final.FullySucceeded() {
				return errIncomplete
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.repo, "repo", "", "repository URL to test (overrides repo.url)")
	cmd.Flags().StringVar(&flags.targetDir, "target-dir", "", "clone directory (overrides repo.target_dir)")
	cmd.Flags().StringVar(&flags.image, "image", "", "Docker image name (overrides docker.image_name)")
	cmd.Flags().StringVar(&flags.projectRoot, "project-root", "", "directory holding all artifacts (overrides project.root)")
	return cmd
}

// runPipeline wires the collaborators, runs every stage and prints the
// summary. The error is non-nil only when the run could not be set up or
// its final state could not be saved.
func runPipeline(ctx context.Context, a *app, out io.Writer) (pipeline.RunState, error) {
	cfg, logger := a.cfg, a.logger

	if err := cfg.RequireAPIKey(); err != nil {
		return pipeline.RunState{}, err
	}
	if err := a.layout.EnsureDirs(); err != nil {
		return pipeline.RunState{}, fmt.Errorf("preparing artifact directories: %w", err)
	}

	scrubber, err := a.scrubber()
	if err != nil {
		return pipeline.RunState{}, err
	}
	model, err := llm.New(cfg.LLM, llm.WithLogger(logger.Named("llm")))
	if err != nil {
		return pipeline.RunState{}, err
	}

	deps := stages.Deps{
		Cloner:      repo.NewCloner(cfg.Repo.Depth, logger.Named("repo")),
		Provisioner: container.NewProvisioner(cfg.Docker, container.WithLogger(logger.Named("container"))),
		Fetcher:     fetch.NewClient(cfg.Service.BaseURL, cfg.Service.FetchTimeout.Duration(), logger.Named("fetch")),
		LLM:         model,
		Runner:      runner.New(cfg.Runner.Python, cfg.Runner.Timeout.Duration(), a.layout, logger.Named("runner")),
		Scrubber:    scrubber,
		Layout:      a.layout,
		BaseURL:     cfg.Service.BaseURL,
		Logger:      logger.Named("stages"),
	}
	if cfg.Repo.Preflight {
		deps.Preflight = repo.NewPreflight(ctx, cfg.Repo.GitHubToken)
	}

	m := metrics.NewMetrics()
	opts := []pipeline.ControllerOption{
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithTracer(a.telemetry.Tracer("github.com/fyrsmithlabs/qaflow/internal/pipeline")),
		pipeline.WithObserver(m),
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger.Named("events"))
		if err != nil {
			logger.Warn(ctx, "event publishing disabled", zap.Error(err))
		} else {
			defer func() { _ = pub.Close() }()
			opts = append(opts, pipeline.WithObserver(pub))
		}
	}

	ctrl := pipeline.NewController(pipeline.FileStore{Path: a.layout.FinalState()}, opts...)
	for _, s := range stages.All(deps) {
		ctrl.Register(s)
	}

	state := pipeline.NewRunState(cfg.Repo.URL, a.targetDir(), cfg.Docker.ImageName)
	final, runErr := ctrl.Run(ctx, state)

	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn(ctx, "writing metrics textfile", zap.Error(err))
	}
	if err := summary.NewPrinter(out).Print(final); err != nil {
		logger.Warn(ctx, "printing summary", zap.Error(err))
	}
	return final, runErr
}
