package stages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fyrsmithlabs/qaflow/internal/llm"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/fyrsmithlabs/qaflow/internal/prompts"
	"go.uber.org/zap"
)

// noOutput stands in for a test run that left no output file.
const noOutput = "(no test output was captured)"

// GenerateReports renders one Markdown QA report per route.
type GenerateReports struct {
	deps Deps
}

// ID implements pipeline.Stage.
func (s *GenerateReports) ID() pipeline.StageID { return pipeline.StageGenerateReports }

// Execute implements pipeline.Stage.
func (s *GenerateReports) Execute(ctx context.Context, state pipeline.RunState) pipeline.Update {
	routes := state.ExtractedRoutes
	if len(routes) == 0 {
		s.deps.Logger.Warn(ctx, "no routes extracted, skipping report generation")
		return pipeline.Succeeded(s.ID())
	}

	spec, err := os.ReadFile(s.deps.Layout.SpecDocument())
	if err != nil {
		return s.deps.fail(ctx, s.ID(), ReportFailedPrefix, err)
	}

	var reports, failures []string
	for _, route := range routes {
		rctx := logging.WithRoute(ctx, route.Name)
		path, err := s.route(rctx, route, string(spec))
		if err != nil {
			msg := fmt.Sprintf("Report generation failed for %s: %v", route.Name, err)
			s.deps.Logger.Warn(rctx, "report failed", kindField(err), zap.Error(err))
			failures = append(failures, msg)
			continue
		}
		reports = append(reports, path)
	}

	if len(failures) > 0 {
		return pipeline.Update{
			Stage:         s.ID(),
			Error:         ReportPartialPrefix + strings.Join(failures, "; "),
			Reports:       reports,
			RouteFailures: len(failures),
		}
	}
	return pipeline.Update{Stage: s.ID(), Success: true, Reports: reports}
}

func (s *GenerateReports) route(ctx context.Context, route pipeline.Route, spec string) (string, error) {
	script := s.deps.Layout.TestScript(route.Name)
	code, err := os.ReadFile(script)
	if err != nil {
		return "", fmt.Errorf("reading test script: %w", err)
	}

	output := noOutput
	raw, err := os.ReadFile(s.deps.Layout.TestOutput(script))
	switch {
	case err == nil:
		output = string(raw)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("reading test output: %w", err)
	}

	reply, err := s.deps.LLM.Complete(ctx, prompts.Report, map[string]any{
		"page_name":         route.Name,
		"spec_content":      spec,
		"test_code":         string(code),
		"test_output":       s.deps.scrub(ctx, "test output "+route.Name, output),
		"screenshot_before": s.deps.Layout.Rel(s.deps.Layout.ScreenshotBefore(route.Name)),
		"screenshot_after":  s.deps.Layout.Rel(s.deps.Layout.ScreenshotAfter(route.Name)),
	})
	if err != nil {
		return "", err
	}
	if err := llm.CheckReply(reply); err != nil {
		return "", err
	}

	path := s.deps.Layout.Report(route.Name)
	if err := writeFile(path, reply); err != nil {
		return "", err
	}
	s.deps.Logger.Info(ctx, "report saved", zap.String("path", path))
	return path, nil
}
