package campaign

import (
	"context"
	"errors"

	"github.com/san-kum/iondiff/internal/restart"
	"github.com/san-kum/iondiff/internal/traj"
)

// Domain errors for campaign control.
var (
	// ErrPrerequisite indicates the canonical structure or its precomputed
	// host data could not be found before the campaign started.
	ErrPrerequisite = errors.New("campaign: prerequisite artifacts not found")

	// ErrSubProcess indicates a launched run terminated abnormally or
	// finished without producing its output trajectory.
	ErrSubProcess = errors.New("campaign: sub-process run failed")

	// ErrNoEstimate indicates the estimator returned no entry for the
	// species of interest.
	ErrNoEstimate = errors.New("campaign: estimator returned no estimate for species of interest")
)

// Status is the terminal status of a launched run.
type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
	StatusExcepted
	StatusKilled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusExcepted:
		return "excepted"
	case StatusKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Phase is the controller's state-machine phase.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRunning
	PhaseConverged
	PhaseExhausted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRunning:
		return "running"
	case PhaseConverged:
		return "converged"
	case PhaseExhausted:
		return "exhausted"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends the campaign.
func (p Phase) Terminal() bool {
	return p == PhaseConverged || p == PhaseExhausted || p == PhaseFailed
}

// Outcome is the stable code published to callers so they can tell "ran
// out of budget" from "crashed" from "bad input".
type Outcome int

const (
	OutcomeConverged Outcome = iota
	OutcomeExhausted
	OutcomePrerequisiteMissing
	OutcomeSubProcessFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeExhausted:
		return "max iterations exceeded without convergence"
	case OutcomePrerequisiteMissing:
		return "prerequisite artifacts not found"
	case OutcomeSubProcessFailed:
		return "sub-process failure"
	default:
		return "unknown"
	}
}

// Code is the stable machine-readable token for persisted metadata, as
// opposed to the human-readable String form.
func (o Outcome) Code() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomePrerequisiteMissing:
		return "prerequisite_missing"
	case OutcomeSubProcessFailed:
		return "subprocess_failed"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome is fatal, as opposed to the reported
// non-convergence of OutcomeExhausted.
func (o Outcome) Failed() bool {
	return o == OutcomePrerequisiteMissing || o == OutcomeSubProcessFailed
}

// RunSettings are the per-run knobs handed to the submitter. The three
// restart flags are set by the controller between iterations.
type RunSettings struct {
	Steps       int
	Timestep    float64 // fs
	Temperature float64 // K
	Seed        int64

	// VelocitiesFromInput makes the run start from the supplied velocities
	// instead of drawing a fresh thermal distribution.
	VelocitiesFromInput bool
	// CompleteMissing marks that some sites of the input configuration were
	// synthesized from the canonical structure rather than simulated.
	CompleteMissing bool
	// Recenter recentres the configuration before the run. Always off on
	// restarts.
	Recenter bool
}

// RunHandle tracks one submitted run. Wait blocks until the run reaches a
// terminal status or ctx is cancelled.
type RunHandle interface {
	Label() string
	Wait(ctx context.Context) (Status, error)
	// Trajectory returns the output trajectory of a succeeded run. ok is
	// false when the run produced none.
	Trajectory() (t *traj.Trajectory, ok bool)
}

// Submitter dispatches MD runs. Implementations may also satisfy [Cleaner]
// and [PrereqChecker].
type Submitter interface {
	Submit(ctx context.Context, input *restart.Derivation, settings RunSettings, label string) (RunHandle, error)
}

// Cleaner releases the working storage of a completed run.
type Cleaner interface {
	Clean(label string) error
}

// PrereqChecker validates that the upstream artifacts a submitter depends
// on (the precomputed host-lattice data) exist before any run is launched.
type PrereqChecker interface {
	CheckPrereqs() error
}

// Estimate is the diffusion coefficient estimate for one species.
type Estimate struct {
	Mean float64 // D in angstrom^2/fs
	SEM  float64 // standard error of the mean
}

// EstimatorParams configure the diffusion estimate. All fields are in
// frames of the concatenated trajectory.
type EstimatorParams struct {
	EquilibrationFrames int
	SpeciesOfInterest   string
	FitStart            int
	FitEnd              int
	Blocks              int
}

// Estimator computes a per-species diffusion estimate from a structure and
// a trajectory. Implementations must be pure functions of their inputs.
type Estimator interface {
	Estimate(structure traj.Structure, trajectory *traj.Trajectory, params EstimatorParams) (map[string]Estimate, error)
}

// RunRecord identifies one completed run. Records are append-only and
// never reordered.
type RunRecord struct {
	Label   string
	Status  Status
	Segment *traj.Trajectory // nil unless the run succeeded
}

// IterationReport is the convergence evaluation after one completed run.
type IterationReport struct {
	Iteration int
	Label     string
	Estimate  Estimate
	Converged bool
}

// Event is a progress notification emitted by the controller.
type Event struct {
	Phase     Phase
	Iteration int
	Label     string
	Message   string
	Estimate  *Estimate
}

// Reporter receives progress events. Calls are made synchronously from the
// campaign's control goroutine.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Result is everything a campaign publishes to its caller. Trajectory and
// Estimates are populated for converged and exhausted campaigns alike; a
// failed campaign carries whatever had accumulated before the failure.
type Result struct {
	Outcome    Outcome
	Iterations int
	Trajectory *traj.Trajectory
	Estimates  map[string]Estimate
	Runs       []RunRecord
	History    []IterationReport
	// Cleaned lists the labels whose working storage was actually released.
	Cleaned []string
	// Err holds the classified failure for fatal outcomes, nil otherwise.
	Err error
}
