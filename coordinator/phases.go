package coordinator

import (
	"fmt"
	"time"
)

// Phase is one state of a job's linear, forward-only processing pipeline.
type Phase string

const (
	PhaseCreated               Phase = "created"
	PhaseAGLoaded              Phase = "ag-loaded"
	PhaseMETSLoaded            Phase = "mets-loaded"
	PhaseIdentified            Phase = "identified"
	PhaseMetadataFetched       Phase = "metadata-fetched"
	PhaseManifestDecorated     Phase = "manifest-decorated"
	PhasePaintedResourcesAdded Phase = "painted-resources-added"
	PhasePublished             Phase = "published"
	PhaseFinished              Phase = "finished"
	PhaseFailed                Phase = "failed"
)

// ValidTransitions defines which phase transitions are allowed. Failed is
// reachable from every non-terminal phase; that edge is added below rather
// than repeated in every entry.
var ValidTransitions = map[Phase][]Phase{
	PhaseCreated:               {PhaseAGLoaded},
	PhaseAGLoaded:              {PhaseMETSLoaded},
	PhaseMETSLoaded:            {PhaseIdentified},
	PhaseIdentified:            {PhaseMetadataFetched},
	PhaseMetadataFetched:       {PhaseManifestDecorated},
	PhaseManifestDecorated:     {PhasePaintedResourcesAdded},
	PhasePaintedResourcesAdded: {PhasePublished},
	PhasePublished:             {PhaseFinished},
}

func init() {
	for phase, targets := range ValidTransitions {
		ValidTransitions[phase] = append(targets, PhaseFailed)
	}
}

// IsTerminal returns true if the phase is a terminal state.
func (p Phase) IsTerminal() bool {
	return p == PhaseFinished || p == PhaseFailed
}

// CanTransitionTo checks if a transition to the target phase is valid.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, valid := range ValidTransitions[p] {
		if valid == target {
			return true
		}
	}
	return false
}

// PhaseState is the current phase of a single job's pipeline run.
type PhaseState struct {
	JobID     uint
	Phase     Phase
	ChangedAt time.Time
	Reason    string
}

// PhaseTracker advances a single job through the pipeline, rejecting any
// transition the graph above does not allow. The JobCoordinator holds one
// PhaseTracker per job; there is no shared/concurrent access to guard
// against, since jobs are processed strictly sequentially, one at a time.
type PhaseTracker struct {
	state PhaseState
}

// NewPhaseTracker starts a job in PhaseCreated.
func NewPhaseTracker(jobID uint) *PhaseTracker {
	return &PhaseTracker{state: PhaseState{JobID: jobID, Phase: PhaseCreated, ChangedAt: time.Now()}}
}

// Phase returns the tracker's current phase.
func (t *PhaseTracker) Phase() Phase {
	return t.state.Phase
}

// TransitionTo advances to newPhase, or returns an error if the graph
// forbids the edge.
func (t *PhaseTracker) TransitionTo(newPhase Phase, reason string) error {
	if !t.state.Phase.CanTransitionTo(newPhase) {
		return fmt.Errorf("invalid transition from %s to %s", t.state.Phase, newPhase)
	}
	t.state.Phase = newPhase
	t.state.ChangedAt = time.Now()
	t.state.Reason = reason
	return nil
}
