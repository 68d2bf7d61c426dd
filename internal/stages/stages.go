// Package stages implements the five pipeline stages on top of their
// collaborators.
//
// Every stage converts collaborator failures into a failed pipeline.Update
// whose message starts with a fixed prefix, so operators can tell at a
// glance which stage broke. Per-route stages keep going after a route
// fails and report the failures together.
package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/qaflow/internal/artifacts"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"github.com/fyrsmithlabs/qaflow/internal/prompts"
	"github.com/fyrsmithlabs/qaflow/internal/repo"
	"github.com/fyrsmithlabs/qaflow/internal/secrets"
	"go.uber.org/zap"
)

// Error prefixes, one per stage.
const (
	CloneFailedPrefix     = "Clone failed: "
	ProvisionFailedPrefix = "Docker build/run failed: "
	ExtractFailedPrefix   = "Base spec extraction failed: "
	TestGenFailedPrefix   = "Selenium test generation failed: "
	ReportFailedPrefix    = "Overall report generation node failed: "

	TestGenPartialPrefix = "Some Selenium tests failed to generate: "
	ReportPartialPrefix  = "Some LLM reports failed to generate: "
)

// Cloner fetches the repository under test.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// Preflighter checks a repository before it is cloned.
type Preflighter interface {
	Check(ctx context.Context, url string) (*repo.RepoInfo, error)
}

// Provisioner builds and starts the application container.
type Provisioner interface {
	Provision(ctx context.Context, dir, image string) error
}

// Fetcher retrieves page markup from the running service.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (string, error)
	URL(path string) string
}

// Completer sends a prompt template to the language model.
type Completer interface {
	Complete(ctx context.Context, tmpl prompts.Template, vars map[string]any) (string, error)
}

// ScriptRunner executes a generated script and returns its output path.
type ScriptRunner interface {
	Run(ctx context.Context, script string) string
}

// Deps are the collaborators shared by all stages.
type Deps struct {
	Cloner      Cloner
	Preflight   Preflighter // optional
	Provisioner Provisioner
	Fetcher     Fetcher
	LLM         Completer
	Runner      ScriptRunner
	Scrubber    secrets.Scrubber // nil disables scrubbing
	Layout      artifacts.Layout
	BaseURL     string
	Logger      *logging.Logger
}

// All returns the five stages in pipeline order.
func All(d Deps) []pipeline.Stage {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Scrubber == nil {
		d.Scrubber = secrets.NoopScrubber{}
	}
	return []pipeline.Stage{
		&Clone{deps: d},
		&Provision{deps: d},
		&ExtractSpec{deps: d},
		&GenerateTests{deps: d},
		&GenerateReports{deps: d},
	}
}

// scrub removes secrets from content before it leaves the process.
func (d Deps) scrub(ctx context.Context, what, content string) string {
	res := d.Scrubber.Scrub(content)
	if res.HasFindings() {
		d.Logger.Warn(ctx, "secrets redacted before prompt",
			zap.String("content", what),
			zap.Int("findings", res.TotalFindings),
		)
	}
	return res.Scrubbed
}

// fail logs err with its failure kind and returns the stage's failed update.
func (d Deps) fail(ctx context.Context, id pipeline.StageID, prefix string, err error) pipeline.Update {
	d.Logger.Warn(ctx, "stage error", kindField(err), zap.Error(err))
	return pipeline.Failed(id, prefix+err.Error())
}

// kindField labels err with its failure kind.
func kindField(err error) zap.Field {
	kind := failure.KindOf(err)
	if kind == "" {
		return zap.String("kind", "unclassified")
	}
	return zap.String("kind", string(kind))
}

// writeFile writes data, creating parent directories.
func writeFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
