package stages

import (
	"context"

	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
)

// Provision builds and starts the application container. A failure leaves
// whatever was already started in place.
type Provision struct {
	deps Deps
}

// ID implements pipeline.Stage.
func (s *Provision) ID() pipeline.StageID { return pipeline.StageProvision }

// Execute implements pipeline.Stage.
func (s *Provision) Execute(ctx context.Context, state pipeline.RunState) pipeline.Update {
	if err := s.deps.Provisioner.Provision(ctx, state.TargetDir, state.ImageName); err != nil {
		return s.deps.fail(ctx, s.ID(), ProvisionFailedPrefix, err)
	}
	return pipeline.Succeeded(s.ID())
}
