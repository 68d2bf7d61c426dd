package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState is the record threaded through every stage of a run.
//
// Values are never mutated in place: Apply returns a new RunState with the
// stage delta merged in. The JSON form is the audit record written at the
// end of a run.
type RunState struct {
	RunID     string `json:"run_id"`
	RepoURL   string `json:"repo_url"`
	TargetDir string `json:"target_dir"`
	ImageName string `json:"docker_image_name"`

	CloneSuccess              *bool  `json:"clone_success"`
	CloneError                string `json:"clone_error,omitempty"`
	DockerRunSuccess          *bool  `json:"docker_run_success"`
	DockerError               string `json:"docker_error,omitempty"`
	BaseSpecExtractionSuccess *bool  `json:"base_spec_extraction_success"`
	BaseSpecError             string `json:"base_spec_error,omitempty"`
	TestGenerationSuccess     *bool  `json:"selenium_test_generation_success"`
	TestGenerationError       string `json:"selenium_gen_error,omitempty"`
	ReportGenerationSuccess   *bool  `json:"report_generation_success"`
	ReportGenerationError     string `json:"report_gen_error,omitempty"`

	OverallError string `json:"overall_error,omitempty"`

	ExtractedRoutes          []Route  `json:"extracted_routes"`
	GeneratedTestScriptPaths []string `json:"generated_test_scripts_paths"`
	FinalReportPaths         []string `json:"final_report_paths"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
}

// NewRunState creates the initial state: all flags unset, no artifacts.
func NewRunState(repoURL, targetDir, imageName string) RunState {
	return RunState{
		RunID:                    uuid.NewString(),
		RepoURL:                  repoURL,
		TargetDir:                targetDir,
		ImageName:                imageName,
		ExtractedRoutes:          []Route{},
		GeneratedTestScriptPaths: []string{},
		FinalReportPaths:         []string{},
		StartedAt:                time.Now().UTC(),
	}
}

// Update is the delta a stage returns. Only the stage's own fields may be set.
type Update struct {
	Stage   StageID
	Success bool
	Error   string

	// Routes may only be written by StageExtractSpec.
	Routes []Route
	// Scripts may only be written by StageGenerateTests.
	Scripts []string
	// Reports may only be written by StageGenerateReports.
	Reports []string

	// RouteFailures counts routes that failed inside a per-route stage.
	// It feeds observers only and is not persisted.
	RouteFailures int
}

// Succeeded builds a success update for stage.
func Succeeded(stage StageID) Update {
	return Update{Stage: stage, Success: true}
}

// Failed builds a failure update for stage.
func Failed(stage StageID, msg string) Update {
	return Update{Stage: stage, Success: false, Error: msg}
}

// Status returns the recorded outcome of a stage.
func (s RunState) Status(id StageID) StageStatus {
	flag, errMsg, ok := s.slot(id)
	if !ok {
		return StageStatus{}
	}
	return StageStatus{Success: *flag, Error: *errMsg}
}

// FullySucceeded is the logical AND of all five stage flags. Unset counts as false.
func (s RunState) FullySucceeded() bool {
	for _, id := range AllStages() {
		if !s.Status(id).Succeeded() {
			return false
		}
	}
	return true
}

// Apply merges u into a copy of s and returns the copy.
//
// Apply rejects updates that would break the run state invariants: a stage
// recording twice, a failure without a message, a success with one,
// artifacts written by a stage that does not own them, or duplicate route
// names. The receiver is never modified.
func (s RunState) Apply(u Update) (RunState, error) {
	next := s.clone()

	flag, errMsg, ok := next.slot(u.Stage)
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownStage, u.Stage)
	}
	if *flag != nil {
		return s, fmt.Errorf("%w: %s", ErrStageAlreadyRan, u.Stage)
	}
	if u.Success && u.Error != "" {
		return s, fmt.Errorf("%w: %s succeeded with error %q", ErrInconsistentUpdate, u.Stage, u.Error)
	}
	if !u.Success && u.Error == "" {
		return s, fmt.Errorf("%w: %s failed without an error message", ErrInconsistentUpdate, u.Stage)
	}
	if len(u.Routes) > 0 && u.Stage != StageExtractSpec {
		return s, fmt.Errorf("%w: %s wrote extracted routes", ErrUnauthorizedWrite, u.Stage)
	}
	if len(u.Scripts) > 0 && u.Stage != StageGenerateTests {
		return s, fmt.Errorf("%w: %s wrote test script paths", ErrUnauthorizedWrite, u.Stage)
	}
	if len(u.Reports) > 0 && u.Stage != StageGenerateReports {
		return s, fmt.Errorf("%w: %s wrote report paths", ErrUnauthorizedWrite, u.Stage)
	}

	success := u.Success
	*flag = &success
	*errMsg = u.Error
	if !u.Success {
		next.OverallError = u.Error
	}

	if u.Stage == StageExtractSpec {
		seen := make(map[string]struct{}, len(u.Routes))
		for _, r := range u.Routes {
			if _, dup := seen[r.Name]; dup {
				return s, fmt.Errorf("%w: %s", ErrDuplicateRoute, r.Name)
			}
			seen[r.Name] = struct{}{}
		}
		next.ExtractedRoutes = append(next.ExtractedRoutes, u.Routes...)
	}
	next.GeneratedTestScriptPaths = append(next.GeneratedTestScriptPaths, u.Scripts...)
	next.FinalReportPaths = append(next.FinalReportPaths, u.Reports...)

	return next, nil
}

// slot returns pointers to the flag and error fields of a stage.
// Callers must only use it on a value they own.
func (s *RunState) slot(id StageID) (**bool, *string, bool) {
	switch id {
	case StageClone:
		return &s.CloneSuccess, &s.CloneError, true
	case StageProvision:
		return &s.DockerRunSuccess, &s.DockerError, true
	case StageExtractSpec:
		return &s.BaseSpecExtractionSuccess, &s.BaseSpecError, true
	case StageGenerateTests:
		return &s.TestGenerationSuccess, &s.TestGenerationError, true
	case StageGenerateReports:
		return &s.ReportGenerationSuccess, &s.ReportGenerationError, true
	default:
		return nil, nil, false
	}
}

// clone copies s so that no slice or pointer is shared with the original.
func (s RunState) clone() RunState {
	next := s
	next.ExtractedRoutes = append([]Route{}, s.ExtractedRoutes...)
	next.GeneratedTestScriptPaths = append([]string{}, s.GeneratedTestScriptPaths...)
	next.FinalReportPaths = append([]string{}, s.FinalReportPaths...)
	next.CloneSuccess = copyBool(s.CloneSuccess)
	next.DockerRunSuccess = copyBool(s.DockerRunSuccess)
	next.BaseSpecExtractionSuccess = copyBool(s.BaseSpecExtractionSuccess)
	next.TestGenerationSuccess = copyBool(s.TestGenerationSuccess)
	next.ReportGenerationSuccess = copyBool(s.ReportGenerationSuccess)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		next.FinishedAt = &t
	}
	return next
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
