package campaign

import (
	"context"
	"fmt"

	"github.com/san-kum/iondiff/internal/restart"
	"github.com/san-kum/iondiff/internal/traj"
)

// Controller owns the campaign state machine. It is driven by a single
// control goroutine: iterations are strictly sequential because each run's
// input depends on the previous run's final frame. The only suspension
// point is the wait on a dispatched run.
type Controller struct {
	canonical traj.Structure
	submitter Submitter
	estimator Estimator
	criteria  Criteria
	params    EstimatorParams
	settings  RunSettings

	cleanWorkdirs bool
	reporter      Reporter
}

func New(canonical traj.Structure, sub Submitter, est Estimator, crit Criteria, params EstimatorParams, settings RunSettings) *Controller {
	return &Controller{
		canonical: canonical,
		submitter: sub,
		estimator: est,
		criteria:  crit,
		params:    params,
		settings:  settings,
	}
}

// CleanWorkdirs enables best-effort release of every completed run's
// working storage once the campaign reaches a terminal phase.
func (c *Controller) CleanWorkdirs(clean bool) { c.cleanWorkdirs = clean }

// SetReporter installs a progress event sink. Events are delivered
// synchronously from the control goroutine.
func (c *Controller) SetReporter(r Reporter) { c.reporter = r }

func (c *Controller) report(e Event) {
	if c.reporter != nil {
		c.reporter.Report(e)
	}
}

// Run drives the campaign to a terminal phase and returns the published
// result. Classified outcomes (converged, exhausted, prerequisite missing,
// sub-process failure) come back as a Result with a nil error; the error
// return is reserved for cancellation and for internal faults such as a
// restart-state inconsistency.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	if err := c.criteria.Validate(); err != nil {
		return nil, fmt.Errorf("campaign: invalid criteria: %w", err)
	}
	if err := c.validateParams(); err != nil {
		return nil, fmt.Errorf("campaign: invalid estimator parameters: %w", err)
	}

	st := &state{current: c.canonical.Clone()}
	c.report(Event{Phase: PhaseInit, Message: "validating prerequisites"})

	if err := c.checkPrereqs(); err != nil {
		return c.terminate(st, OutcomePrerequisiteMissing, fmt.Errorf("%w: %v", ErrPrerequisite, err)), nil
	}

	for c.criteria.ShouldContinue(st.iteration, st.converged) {
		res, err := c.iterate(ctx, st)
		if err != nil {
			c.cleanup(st)
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	outcome := OutcomeExhausted
	if st.converged {
		outcome = OutcomeConverged
	}
	return c.terminate(st, outcome, nil), nil
}

// state is the mutable campaign state, owned exclusively by the control
// goroutine for the duration of Run.
type state struct {
	iteration int
	converged bool
	current   traj.Structure

	runs      []RunRecord
	segments  []*traj.Trajectory
	total     *traj.Trajectory
	estimates map[string]Estimate
	history   []IterationReport
	cleaned   []string
}

// iterate executes one loop body: derive input, launch, inspect, aggregate
// and evaluate. A non-nil Result means the campaign terminated.
func (c *Controller) iterate(ctx context.Context, st *state) (*Result, error) {
	input, settings, err := c.nextInput(st)
	if err != nil {
		return nil, err
	}

	label := fmt.Sprintf("replay_%02d", st.iteration)
	c.report(Event{Phase: PhaseRunning, Iteration: st.iteration, Label: label,
		Message: fmt.Sprintf("launching run %s", label)})

	handle, err := c.submitter.Submit(ctx, input, settings, label)
	if err != nil {
		return c.terminate(st, OutcomeSubProcessFailed, fmt.Errorf("%w: submit %s: %v", ErrSubProcess, label, err)), nil
	}
	st.iteration++

	status, werr := handle.Wait(ctx)
	if ctx.Err() != nil {
		// An outcome observed after cancellation is discarded, but the
		// working storage of completed runs is still released.
		c.cleanup(st)
		return nil, ctx.Err()
	}
	if werr != nil {
		return c.terminate(st, OutcomeSubProcessFailed, fmt.Errorf("%w: %s: %v", ErrSubProcess, label, werr)), nil
	}

	switch status {
	case StatusExcepted, StatusKilled:
		return c.terminate(st, OutcomeSubProcessFailed,
			fmt.Errorf("%w: run %s was %s", ErrSubProcess, label, status)), nil
	case StatusFailed:
		return c.terminate(st, OutcomeSubProcessFailed,
			fmt.Errorf("%w: run %s exited with controlled failure", ErrSubProcess, label)), nil
	case StatusSucceeded:
	default:
		return c.terminate(st, OutcomeSubProcessFailed,
			fmt.Errorf("%w: run %s reported non-terminal status %s", ErrSubProcess, label, status)), nil
	}

	segment, ok := handle.Trajectory()
	if !ok || segment.Len() == 0 {
		return c.terminate(st, OutcomeSubProcessFailed,
			fmt.Errorf("%w: run %s finished without an output trajectory", ErrSubProcess, label)), nil
	}

	st.runs = append(st.runs, RunRecord{Label: label, Status: status, Segment: segment})
	st.segments = append(st.segments, segment)

	// Rebuild the combined trajectory from scratch so boundary-frame
	// deduplication stays consistent across iterations.
	total, err := traj.Concatenate(st.segments)
	if err != nil {
		return nil, fmt.Errorf("campaign: concatenating %d segments: %w", len(st.segments), err)
	}
	st.total = total

	estimates, err := c.estimator.Estimate(st.current, total, c.params)
	if err != nil {
		return nil, fmt.Errorf("campaign: diffusion estimate after %s: %w", label, err)
	}
	st.estimates = estimates

	est, ok := estimates[c.params.SpeciesOfInterest]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoEstimate, c.params.SpeciesOfInterest)
	}

	st.converged = c.criteria.Converged(est)
	st.history = append(st.history, IterationReport{
		Iteration: st.iteration,
		Label:     label,
		Estimate:  est,
		Converged: st.converged,
	})
	c.report(Event{Phase: PhaseRunning, Iteration: st.iteration, Label: label,
		Estimate: &est, Message: c.evaluationMessage(est, st.converged)})

	return nil, nil
}

// nextInput derives the input configuration for the upcoming run. The
// first iteration uses the canonical structure verbatim; later iterations
// restart from the previous run's final frame.
func (c *Controller) nextInput(st *state) (*restart.Derivation, RunSettings, error) {
	settings := c.settings
	settings.Seed = c.settings.Seed + int64(st.iteration)

	if st.iteration == 0 {
		return &restart.Derivation{Structure: st.current.Clone()}, settings, nil
	}

	prev := st.segments[len(st.segments)-1]
	d, err := restart.Derive(prev, st.current)
	if err != nil {
		return nil, settings, fmt.Errorf("campaign: deriving restart state for iteration %d: %w", st.iteration, err)
	}

	st.current = d.Structure.Clone()
	settings.VelocitiesFromInput = true
	settings.CompleteMissing = d.CompleteMissing
	settings.Recenter = false
	return d, settings, nil
}

func (c *Controller) evaluationMessage(e Estimate, converged bool) string {
	if e.Mean < 0 {
		return fmt.Sprintf("diffusion coefficient (%.5e +/- %.5e) is negative, not converged", e.Mean, e.SEM)
	}
	if !converged {
		return fmt.Sprintf("error not converged: sem %.5e (target %.5e), relative %.5e (target %.5e)",
			e.SEM, c.criteria.SEMThreshold, e.SEM/e.Mean, c.criteria.SEMRelativeThreshold)
	}
	if e.SEM < c.criteria.SEMThreshold {
		return fmt.Sprintf("error %.5e below target %.5e", e.SEM, c.criteria.SEMThreshold)
	}
	return fmt.Sprintf("relative error %.5e below target %.5e", e.SEM/e.Mean, c.criteria.SEMRelativeThreshold)
}

func (c *Controller) checkPrereqs() error {
	if c.canonical.Atoms() == 0 {
		return fmt.Errorf("canonical structure has no atoms")
	}
	if c.canonical.CountSpecies(c.params.SpeciesOfInterest) == 0 {
		return fmt.Errorf("species of interest %q absent from canonical structure", c.params.SpeciesOfInterest)
	}
	if pc, ok := c.submitter.(PrereqChecker); ok {
		if err := pc.CheckPrereqs(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) validateParams() error {
	if c.params.SpeciesOfInterest == "" {
		return fmt.Errorf("species of interest is required")
	}
	if c.params.EquilibrationFrames < 0 {
		return fmt.Errorf("equilibration frames must be >= 0, got %d", c.params.EquilibrationFrames)
	}
	if c.params.FitEnd <= c.params.FitStart {
		return fmt.Errorf("fit window [%d, %d) is empty", c.params.FitStart, c.params.FitEnd)
	}
	if c.params.Blocks < 1 {
		return fmt.Errorf("block count must be >= 1, got %d", c.params.Blocks)
	}
	return nil
}

// cleanup releases completed runs' working storage, best effort. Per-run
// failures are swallowed: cleanup runs only after the campaign already
// reached a terminal outcome.
func (c *Controller) cleanup(st *state) {
	if !c.cleanWorkdirs {
		return
	}
	cleaner, ok := c.submitter.(Cleaner)
	if !ok {
		return
	}
	for _, r := range st.runs {
		if err := cleaner.Clean(r.Label); err != nil {
			continue
		}
		st.cleaned = append(st.cleaned, r.Label)
	}
	if len(st.cleaned) > 0 {
		c.report(Event{Iteration: st.iteration,
			Message: fmt.Sprintf("cleaned working storage of %d runs", len(st.cleaned))})
	}
}

func (c *Controller) terminate(st *state, outcome Outcome, failure error) *Result {
	c.cleanup(st)

	phase := PhaseFailed
	switch outcome {
	case OutcomeConverged:
		phase = PhaseConverged
	case OutcomeExhausted:
		phase = PhaseExhausted
	}
	c.report(Event{Phase: phase, Iteration: st.iteration,
		Message: fmt.Sprintf("campaign terminated after %d iterations: %s", st.iteration, outcome)})

	return &Result{
		Outcome:    outcome,
		Iterations: st.iteration,
		Trajectory: st.total,
		Estimates:  st.estimates,
		Runs:       st.runs,
		History:    st.history,
		Cleaned:    st.cleaned,
		Err:        failure,
	}
}
