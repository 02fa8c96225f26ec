package ingest

import (
	"fmt"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/workunit"
)

// State is the orchestrator's position in the run state machine:
// Authenticating -> Iterating -> {Fetching -> Persisting}* -> Completed | Aborted.
type State string

const (
	StateAuthenticating State = "authenticating"
	StateIterating      State = "iterating"
	StateFetching       State = "fetching"
	StatePersisting     State = "persisting"
	StateCompleted      State = "completed"
	StateAborted        State = "aborted"
)

// Stage names where a unit failed.
type Stage string

const (
	StageRequest Stage = "request"
	StageFetch   Stage = "fetch"
	StagePersist Stage = "persist"
)

// UnitError reports the unit and stage that aborted a run.
type UnitError struct {
	Unit  workunit.Unit
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %s: %v", e.Unit.ID(), e.Stage, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// Report summarizes one run. It is returned for completed and aborted runs.
type Report struct {
	RunID  string
	Source workunit.Source
	State  State

	// Units is the number of units the plan yields.
	Units int

	// Persisted counts written units, including empty ones.
	Persisted int

	// Empty counts units the provider had no records for.
	Empty int

	// Failed is 1 when a unit aborted the run, else 0.
	Failed int

	// Locations lists written units in processing order.
	Locations []string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
