package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/llm"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/fyrsmithlabs/qaflow/internal/prompts"
	"github.com/fyrsmithlabs/qaflow/internal/specdoc"
	"go.uber.org/zap"
)

// ErrNoHTML is returned when the landing page is empty.
var ErrNoHTML = errors.New("no HTML source to analyze")

// ExtractSpec derives the functional specification from the landing page
// and records the routes it names.
type ExtractSpec struct {
	deps Deps
}

// ID implements pipeline.Stage.
func (s *ExtractSpec) ID() pipeline.StageID { return pipeline.StageExtractSpec }

// Execute implements pipeline.Stage.
func (s *ExtractSpec) Execute(ctx context.Context, _ pipeline.RunState) pipeline.Update {
	fail := func(err error) pipeline.Update {
		return s.deps.fail(ctx, s.ID(), ExtractFailedPrefix, err)
	}

	html, err := s.deps.Fetcher.Fetch(ctx, "/")
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(html) == "" {
		return fail(failure.New(failure.KindFetch, "fetch "+s.deps.Fetcher.URL("/"), ErrNoHTML))
	}

	reply, err := s.deps.LLM.Complete(ctx, prompts.SpecExtraction, map[string]any{
		"html_source": s.deps.scrub(ctx, "landing page", html),
	})
	if err != nil {
		return fail(err)
	}
	if err := llm.CheckReply(reply); err != nil {
		return fail(err)
	}

	docPath := s.deps.Layout.SpecDocument()
	if err := writeFile(docPath, reply); err != nil {
		return fail(err)
	}
	s.deps.Logger.Info(ctx, "functional specification saved", zap.String("path", docPath))

	routes, err := specdoc.ParseFile(docPath)
	if err != nil {
		s.deps.Logger.Warn(ctx, "could not parse specification, continuing without routes", kindField(err), zap.Error(err))
		routes = nil
	}
	if len(routes) == 0 {
		s.deps.Logger.Warn(ctx, "no routes found in functional specification")
	}

	return pipeline.Update{Stage: s.ID(), Success: true, Routes: routes}
}
