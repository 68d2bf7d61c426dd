package pipeline

// RouteFunc decides the next node from the state produced by a stage.
type RouteFunc func(RunState) StageID

// routes is the transition table, one entry per executable stage.
var routes = map[StageID]RouteFunc{
	StageClone:           forwardOnSuccess(StageClone, StageProvision),
	StageProvision:       forwardOnSuccess(StageProvision, StageExtractSpec),
	StageExtractSpec:     forwardOnSuccess(StageExtractSpec, StageGenerateTests),
	StageGenerateTests:   afterTestGeneration,
	StageGenerateReports: forwardOnSuccess(StageGenerateReports, EndSuccess),
}

// Next returns the node that follows stage given state.
// Unknown stages route to EndError.
func Next(stage StageID, state RunState) StageID {
	route, ok := routes[stage]
	if !ok {
		return EndError
	}
	return route(state)
}

func forwardOnSuccess(stage, next StageID) RouteFunc {
	return func(s RunState) StageID {
		if s.Status(stage).Succeeded() {
			return next
		}
		return EndError
	}
}

// afterTestGeneration tolerates per-route failures: a recorded stage error
// still proceeds to reporting. Only a stage that recorded nothing halts.
func afterTestGeneration(s RunState) StageID {
	st := s.Status(StageGenerateTests)
	if st.Succeeded() || st.Error != "" {
		return StageGenerateReports
	}
	return EndError
}
