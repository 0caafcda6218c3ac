package scan

import "fmt"

// State is the lifecycle position of one pipeline run.
type State string

// Run states.
const (
	Idle     State = "idle"
	Ingested State = "ingested"
	Detected State = "detected"
	// Done is terminal: every region was processed, regardless of per-region failures.
	Done State = "done"
	// Aborted is terminal: the run stopped before any region was processed.
	Aborted State = "aborted"
)

// IsTerminal reports whether no further transition is allowed.
func (s State) IsTerminal() bool {
	return s == Done || s == Aborted
}

var transitions = map[State][]State{
	Idle:     {Ingested, Aborted},
	Ingested: {Detected, Aborted},
	Detected: {Done},
}

// Machine enforces the run state transitions.
type Machine struct {
	state State
}

// NewMachine starts in Idle.
func NewMachine() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Advance moves to next or returns an error if the transition is illegal.
func (m *Machine) Advance(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal scan transition %s -> %s", m.state, next)
}

// Stage is how far a single region got through crop → upload → search.
type Stage string

// Region stages.
const (
	StagePending  Stage = "pending"
	StageCropped  Stage = "cropped"
	StageUploaded Stage = "uploaded"
	StageSearched Stage = "searched"
)

// Status is the final per-region outcome.
type Status string

// Region statuses.
const (
	StatusMatched      Status = "matched"
	StatusNoMatches    Status = "no_matches"
	StatusCropFailed   Status = "crop_failed"
	StatusUploadFailed Status = "upload_failed"
	StatusSearchFailed Status = "search_failed"
	StatusMalformed    Status = "malformed_response"
)

// Failed reports whether the region stopped before a search answer was obtained.
func (s Status) Failed() bool {
	switch s {
	case StatusCropFailed, StatusUploadFailed, StatusSearchFailed, StatusMalformed:
		return true
	default:
		return false
	}
}
