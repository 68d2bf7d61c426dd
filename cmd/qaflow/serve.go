package main

import (
	"context"
	"fmt"

	httpserver "github.com/fyrsmithlabs/qaflow/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run state, reports and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			if port != 0 {
				a.cfg.Server.Port = port
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// serve runs the results server until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	logger := a.logger.Named("http")

	scrubber, err := a.scrubber()
	if err != nil {
		return err
	}

	state, err := httpserver.NewStateWatcher(a.layout.FinalState(), logger)
	if err != nil {
		return err
	}
	if err := state.Start(ctx); err != nil {
		return err
	}
	defer state.Stop()

	server, err := httpserver.NewServer(state, a.layout, scrubber, logger, &httpserver.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown", zap.Error(err))
		return err
	}
	return <-errCh
}
