// Package runner executes generated test scripts and captures their output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/artifacts"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"go.uber.org/zap"
)

// ErrorLinePrefix starts the line written when a script could not be run.
const ErrorLinePrefix = "[ERROR] Failed to run test case: "

// Runner runs scripts with a Python interpreter from the project root.
type Runner struct {
	python  string
	timeout time.Duration
	layout  artifacts.Layout
	logger  *logging.Logger
}

// New creates a Runner. A zero timeout waits for the script to exit.
func New(python string, timeout time.Duration, layout artifacts.Layout, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{python: python, timeout: timeout, layout: layout, logger: logger}
}

// Run executes script and writes its combined stdout and stderr to the
// script's output file, whose path it returns. A script that exits non-zero
// is a test result, not a runner failure. When the interpreter cannot be
// started, or the script is killed by the timeout or ctx, an error line
// follows whatever output was captured.
func (r *Runner) Run(ctx context.Context, script string) string {
	outPath := r.layout.TestOutput(script)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		r.logger.Error(ctx, "creating test output dir", zap.Error(err))
		return outPath
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.python, script)
	cmd.Dir = r.layout.Root
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			r.logger.Warn(ctx, "test script could not be run", zap.String("script", script), zap.Error(err))
			if len(out) > 0 && out[len(out)-1] != '\n' {
				out = append(out, '\n')
			}
			out = append(out, fmt.Sprintf("%s%v\n", ErrorLinePrefix, err)...)
		} else {
			r.logger.Info(ctx, "test script exited with failure", zap.String("script", script), zap.Error(err))
		}
	}

	if werr := os.WriteFile(outPath, out, 0o644); werr != nil {
		r.logger.Error(ctx, "writing test output", zap.String("path", outPath), zap.Error(werr))
		return outPath
	}

	r.logger.Debug(ctx, "test script finished",
		zap.String("script", script),
		zap.String("output", outPath),
		zap.Duration("elapsed", time.Since(start)),
	)
	return outPath
}
