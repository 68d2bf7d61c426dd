package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/qaflow/internal/llm"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/fyrsmithlabs/qaflow/internal/prompts"
	"github.com/fyrsmithlabs/qaflow/internal/specdoc"
	"go.uber.org/zap"
)

// GenerateTests generates, saves and runs one Selenium script per route.
type GenerateTests struct {
	deps Deps
}

// ID implements pipeline.Stage.
func (s *GenerateTests) ID() pipeline.StageID { return pipeline.StageGenerateTests }

// Execute implements pipeline.Stage.
func (s *GenerateTests) Execute(ctx context.Context, state pipeline.RunState) pipeline.Update {
	routes := state.ExtractedRoutes
	if len(routes) == 0 {
		s.deps.Logger.Warn(ctx, "no routes extracted, nothing to test")
		return pipeline.Succeeded(s.ID())
	}

	var scripts, failures []string
	for _, route := range routes {
		rctx := logging.WithRoute(ctx, route.Name)
		script, msg, err := s.route(rctx, route)
		if err != nil {
			return s.deps.fail(rctx, s.ID(), TestGenFailedPrefix, err)
		}
		if msg != "" {
			s.deps.Logger.Warn(rctx, "route skipped", zap.String("reason", msg))
			failures = append(failures, msg)
			continue
		}
		scripts = append(scripts, script)
	}

	if len(failures) > 0 {
		return pipeline.Update{
			Stage:         s.ID(),
			Error:         TestGenPartialPrefix + strings.Join(failures, "; "),
			Scripts:       scripts,
			RouteFailures: len(failures),
		}
	}
	return pipeline.Update{Stage: s.ID(), Success: true, Scripts: scripts}
}

// route handles one route. A non-empty msg is a per-route failure; err
// aborts the whole stage.
func (s *GenerateTests) route(ctx context.Context, route pipeline.Route) (script, msg string, err error) {
	s.deps.Logger.Info(ctx, "generating test", zap.String("path", route.Path))

	html, ferr := s.deps.Fetcher.Fetch(ctx, route.Path)
	if ferr != nil || strings.TrimSpace(html) == "" {
		if ferr != nil {
			s.deps.Logger.Debug(ctx, "fetch failed", kindField(ferr), zap.Error(ferr))
		}
		return "", fmt.Sprintf("Could not fetch HTML for %s", route.Path), nil
	}

	reply, cerr := s.deps.LLM.Complete(ctx, prompts.TestScript, map[string]any{
		"page_name":         route.Name,
		"path":              route.Path,
		"base_url":          s.deps.BaseURL,
		"html_content":      s.deps.scrub(ctx, "page "+route.Path, html),
		"screenshot_before": s.deps.Layout.Rel(s.deps.Layout.ScreenshotBefore(route.Name)),
		"screenshot_after":  s.deps.Layout.Rel(s.deps.Layout.ScreenshotAfter(route.Name)),
	})
	if cerr == nil {
		cerr = llm.CheckReply(reply)
	}
	code := specdoc.StripCodeFences(reply)
	if cerr != nil || code == "" {
		if cerr != nil {
			s.deps.Logger.Debug(ctx, "test generation failed", kindField(cerr), zap.Error(cerr))
		}
		return "", fmt.Sprintf("Could not generate test code for %s (%s)", route.Name, route.Path), nil
	}

	script = s.deps.Layout.TestScript(route.Name)
	if err := writeFile(script, code+"\n"); err != nil {
		return "", "", err
	}

	out := s.deps.Runner.Run(ctx, script)
	s.deps.Logger.Info(ctx, "test script executed", zap.String("script", script), zap.String("output", out))
	return script, "", nil
}
