// Qaflow clones a web application, runs it in a container and produces
// LLM-generated Selenium tests and QA reports for every page it finds.
//
// Usage:
//
//	# Run the full pipeline with defaults
//	OPENAI_API_KEY=... qaflow run
//
//	# Run against another repository
//	qaflow run --repo https://github.com/acme/shop --image shop_app
//
//	# Serve the results of the last run
//	qaflow serve
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// errIncomplete is returned by run when the pipeline did not fully succeed.
// The summary has already been printed, so main only sets the exit code.
var errIncomplete = errors.New("workflow completed with errors")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, errIncomplete) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "qaflow",
		Short: "Automated QA for containerized web applications",
		Long: `qaflow clones a repository, builds and runs it with Docker, derives a
functional specification from the landing page, generates and runs one
Selenium script per route and writes a QA report for each page.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
		newRoutesCmd(),
		newCleanRequirementsCmd(),
		newVersionCmd(),
	)
	return root
}
