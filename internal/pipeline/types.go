// Package pipeline sequences the QA stages over an immutable run state.
//
// The topology is fixed: clone, provision, spec extraction, test
// generation and report generation, followed by one of two terminal
// outcomes. Each stage returns an Update that is merged into a new
// RunState value, and a table-driven router picks the next node.
package pipeline

import (
	"context"
	"errors"
)

// StageID names a pipeline node. Terminal nodes are StageIDs too.
type StageID string

const (
	// StageClone clones the source repository.
	StageClone StageID = "clone_repo"

	// StageProvision builds and starts the application container.
	StageProvision StageID = "docker_runner"

	// StageExtractSpec derives the functional specification from the homepage.
	StageExtractSpec StageID = "extract_base_spec"

	// StageGenerateTests generates and runs one browser test per route.
	StageGenerateTests StageID = "generate_selenium_tests"

	// StageGenerateReports renders one QA report per route.
	StageGenerateReports StageID = "generate_reports"

	// EndSuccess is the successful terminal node.
	EndSuccess StageID = "end_success"

	// EndError is the failing terminal node.
	EndError StageID = "end_with_error"
)

// AllStages returns the executable stages in pipeline order.
func AllStages() []StageID {
	return []StageID{StageClone, StageProvision, StageExtractSpec, StageGenerateTests, StageGenerateReports}
}

// IsTerminal reports whether id is one of the absorbing outcomes.
func (id StageID) IsTerminal() bool {
	return id == EndSuccess || id == EndError
}

// Label returns the short human name used in summaries.
func (id StageID) Label() string {
	switch id {
	case StageClone:
		return "Clone"
	case StageProvision:
		return "Docker"
	case StageExtractSpec:
		return "Base Spec"
	case StageGenerateTests:
		return "Selenium Gen"
	case StageGenerateReports:
		return "Report Gen"
	default:
		return string(id)
	}
}

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Route identifies one page of the target application.
type Route struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// StageStatus is the recorded outcome of a single stage.
type StageStatus struct {
	Success *bool  `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ran reports whether the stage has recorded an outcome.
func (s StageStatus) Ran() bool {
	return s.Success != nil
}

// Succeeded reports whether the stage recorded success.
func (s StageStatus) Succeeded() bool {
	return s.Success != nil && *s.Success
}

// Stage is one unit of pipeline work.
//
// Execute must not panic and must not return an Update for another stage.
// Collaborator failures are reported through Update.Error.
type Stage interface {
	ID() StageID
	Execute(ctx context.Context, state RunState) Update
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageID StageID
	Fn      func(ctx context.Context, state RunState) Update
}

// ID implements Stage.
func (f StageFunc) ID() StageID { return f.StageID }

// Execute implements Stage.
func (f StageFunc) Execute(ctx context.Context, state RunState) Update { return f.Fn(ctx, state) }

// Pipeline errors. All of them indicate a programming defect and halt the run.
var (
	ErrUnknownStage       = errors.New("unknown stage")
	ErrStageAlreadyRan    = errors.New("stage already recorded an outcome")
	ErrInconsistentUpdate = errors.New("inconsistent stage update")
	ErrUnauthorizedWrite  = errors.New("stage wrote a field it does not own")
	ErrDuplicateRoute     = errors.New("duplicate route name")
	ErrStagePanicked      = errors.New("stage panicked")
	ErrStageNotRegistered = errors.New("stage not registered")
)
