package stages

import (
	"context"

	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"go.uber.org/zap"
)

// Clone fetches the repository into the target directory.
type Clone struct {
	deps Deps
}

// ID implements pipeline.Stage.
func (s *Clone) ID() pipeline.StageID { return pipeline.StageClone }

// Execute implements pipeline.Stage.
func (s *Clone) Execute(ctx context.Context, state pipeline.RunState) pipeline.Update {
	if s.deps.Preflight != nil {
		info, err := s.deps.Preflight.Check(ctx, state.RepoURL)
		if err != nil {
			return s.deps.fail(ctx, s.ID(), CloneFailedPrefix, err)
		}
		if info != nil {
			s.deps.Logger.Info(ctx, "repository preflight passed",
				zap.String("repo", info.Owner+"/"+info.Name),
				zap.String("default_branch", info.DefaultBranch),
			)
		}
	}

	if err := s.deps.Cloner.Clone(ctx, state.RepoURL, state.TargetDir); err != nil {
		return s.deps.fail(ctx, s.ID(), CloneFailedPrefix, err)
	}
	return pipeline.Succeeded(s.ID())
}
