package campaign

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/san-kum/iondiff/internal/restart"
	"github.com/san-kum/iondiff/internal/traj"
)

// --- fakes shared with the ginkgo suite ---

func testCanonical(mobile, static int) traj.Structure {
	s := traj.Structure{Cell: [3]traj.Vec3{{12, 0, 0}, {0, 12, 0}, {0, 0, 12}}}
	for i := 0; i < mobile; i++ {
		s.Species = append(s.Species, "Li")
		s.Positions = append(s.Positions, traj.Vec3{float64(i), 0, 0})
	}
	for i := 0; i < static; i++ {
		s.Species = append(s.Species, "O")
		s.Positions = append(s.Positions, traj.Vec3{float64(i), 3, 0})
	}
	return s
}

type fakeHandle struct {
	label  string
	status Status
	seg    *traj.Trajectory
	block  chan struct{} // when set, Wait blocks until closed or ctx done
}

func (h *fakeHandle) Label() string { return h.label }

func (h *fakeHandle) Wait(ctx context.Context) (Status, error) {
	if h.block != nil {
		select {
		case <-ctx.Done():
			return StatusKilled, ctx.Err()
		case <-h.block:
		}
	}
	return h.status, nil
}

func (h *fakeHandle) Trajectory() (*traj.Trajectory, bool) {
	return h.seg, h.seg != nil && h.seg.Len() > 0
}

type scriptedRun struct {
	status  Status
	emit    bool // produce an output trajectory
	blockCh chan struct{}
}

// fakeSubmitter emits, per run, a two-frame segment whose first frame is
// the submitted input configuration (trimmed to trajAtoms atoms) so the
// restart chain behaves like the real engine.
type fakeSubmitter struct {
	runs      []scriptedRun
	trajAtoms int

	submitted []RunSettings
	inputs    []*restart.Derivation
	labels    []string

	prereqErr    error
	cleanErr     map[string]error
	cleaned      []string
	submitNotify chan string
}

func (s *fakeSubmitter) CheckPrereqs() error { return s.prereqErr }

func (s *fakeSubmitter) Clean(label string) error {
	if err, ok := s.cleanErr[label]; ok && err != nil {
		return err
	}
	s.cleaned = append(s.cleaned, label)
	return nil
}

func (s *fakeSubmitter) Submit(ctx context.Context, input *restart.Derivation, settings RunSettings, label string) (RunHandle, error) {
	i := len(s.submitted)
	if i >= len(s.runs) {
		return nil, fmt.Errorf("unscripted run %d", i)
	}
	s.submitted = append(s.submitted, settings)
	s.inputs = append(s.inputs, input)
	s.labels = append(s.labels, label)
	if s.submitNotify != nil {
		s.submitNotify <- label
	}

	run := s.runs[i]
	h := &fakeHandle{label: label, status: run.status, block: run.blockCh}
	if run.emit {
		h.seg = s.makeSegment(input, i)
	}
	return h, nil
}

func (s *fakeSubmitter) makeSegment(input *restart.Derivation, runIdx int) *traj.Trajectory {
	n := s.trajAtoms
	if n == 0 || n > input.Structure.Atoms() {
		n = input.Structure.Atoms()
	}
	first := traj.Frame{Step: 0}
	for i := 0; i < n; i++ {
		first.Positions = append(first.Positions, input.Structure.Positions[i])
		v := traj.Vec3{}
		if i < len(input.Velocities) {
			v = input.Velocities[i]
		}
		first.Velocities = append(first.Velocities, v)
	}
	last := first.Clone()
	last.Step = 100
	for i := range last.Positions {
		last.Positions[i][0] += 0.25 * float64(runIdx+1)
		last.Velocities[i][1] = 0.01 * float64(runIdx+1)
	}
	return &traj.Trajectory{Frames: []traj.Frame{first, last}}
}

func succeedRuns(n int) []scriptedRun {
	runs := make([]scriptedRun, n)
	for i := range runs {
		runs[i] = scriptedRun{status: StatusSucceeded, emit: true}
	}
	return runs
}

// scriptedEstimator returns one scripted estimate per call, repeating the
// final entry once the script is exhausted.
type scriptedEstimator struct {
	estimates []Estimate
	calls     int
}

func (e *scriptedEstimator) Estimate(structure traj.Structure, trajectory *traj.Trajectory, params EstimatorParams) (map[string]Estimate, error) {
	i := e.calls
	if i >= len(e.estimates) {
		i = len(e.estimates) - 1
	}
	e.calls++
	return map[string]Estimate{params.SpeciesOfInterest: e.estimates[i]}, nil
}

func constantEstimator(mean, sem float64) *scriptedEstimator {
	return &scriptedEstimator{estimates: []Estimate{{Mean: mean, SEM: sem}}}
}

func testCriteria(min, max int) Criteria {
	return Criteria{
		MinIterations:        min,
		MaxIterations:        max,
		SEMThreshold:         1e-5,
		SEMRelativeThreshold: 1e-2,
	}
}

func testParams() EstimatorParams {
	return EstimatorParams{
		SpeciesOfInterest: "Li",
		FitStart:          0,
		FitEnd:            1,
		Blocks:            1,
	}
}

func newTestController(sub Submitter, est Estimator, crit Criteria) *Controller {
	return New(testCanonical(2, 2), sub, est, crit, testParams(), RunSettings{
		Steps: 100, Timestep: 1.0, Temperature: 600, Seed: 7,
	})
}

// --- tests ---

func TestControllerSingleIterationBudget(t *testing.T) {
	// min = max = 1 launches exactly one run whatever the convergence result.
	for _, converges := range []bool{true, false} {
		sub := &fakeSubmitter{runs: succeedRuns(1)}
		est := constantEstimator(1.0, 1e-6) // converges
		if !converges {
			est = constantEstimator(1.0, 1.0)
		}

		res, err := newTestController(sub, est, testCriteria(1, 1)).Run(context.Background())
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if res.Iterations != 1 {
			t.Errorf("converges=%v: launched %d runs, want 1", converges, res.Iterations)
		}
		want := OutcomeExhausted
		if converges {
			want = OutcomeConverged
		}
		if res.Outcome != want {
			t.Errorf("converges=%v: outcome %v, want %v", converges, res.Outcome, want)
		}
	}
}

func TestControllerExhaustsBudget(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(5)}
	est := &scriptedEstimator{estimates: []Estimate{
		{Mean: -0.2, SEM: 1e-9}, {Mean: -0.2, SEM: 1e-9}, // negative: never converged
		{Mean: 1.0, SEM: 1.0}, {Mean: 1.0, SEM: 1.0}, {Mean: 1.0, SEM: 1.0},
	}}

	res, err := newTestController(sub, est, testCriteria(2, 5)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Iterations != 5 {
		t.Errorf("launched %d runs, want 5", res.Iterations)
	}
	if res.Outcome != OutcomeExhausted {
		t.Errorf("outcome %v, want exhausted", res.Outcome)
	}
	if res.Err != nil {
		t.Errorf("exhausted campaign carries failure error: %v", res.Err)
	}
	if res.Trajectory == nil || len(res.Estimates) == 0 {
		t.Error("exhausted campaign did not publish partial results")
	}
}

func TestControllerHonorsMinimumIterations(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(3)}
	est := constantEstimator(1.0, 1e-9) // converges immediately

	res, err := newTestController(sub, est, testCriteria(3, 5)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Iterations != 3 {
		t.Errorf("launched %d runs, want the floor of 3", res.Iterations)
	}
	if res.Outcome != OutcomeConverged {
		t.Errorf("outcome %v, want converged", res.Outcome)
	}
}

func TestControllerAbortsOnAbnormalStatus(t *testing.T) {
	for _, status := range []Status{StatusExcepted, StatusKilled, StatusFailed} {
		t.Run(status.String(), func(t *testing.T) {
			sub := &fakeSubmitter{runs: []scriptedRun{
				{status: StatusSucceeded, emit: true},
				{status: status, emit: false},
				{status: StatusSucceeded, emit: true}, // must never launch
			}}
			est := constantEstimator(1.0, 1.0)

			res, err := newTestController(sub, est, testCriteria(1, 5)).Run(context.Background())
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if res.Outcome != OutcomeSubProcessFailed {
				t.Errorf("outcome %v, want sub-process failure", res.Outcome)
			}
			if res.Iterations != 2 {
				t.Errorf("launched %d runs, want 2 (no relaunch after failure)", res.Iterations)
			}
			if !errors.Is(res.Err, ErrSubProcess) {
				t.Errorf("failure error %v does not wrap ErrSubProcess", res.Err)
			}
		})
	}
}

func TestControllerAbortsOnMissingTrajectory(t *testing.T) {
	sub := &fakeSubmitter{runs: []scriptedRun{{status: StatusSucceeded, emit: false}}}
	res, err := newTestController(sub, constantEstimator(1, 1), testCriteria(1, 3)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Outcome != OutcomeSubProcessFailed {
		t.Errorf("outcome %v, want sub-process failure", res.Outcome)
	}
}

func TestControllerPrerequisiteMissing(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(1), prereqErr: errors.New("host data not found")}
	res, err := newTestController(sub, constantEstimator(1, 1), testCriteria(1, 3)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Outcome != OutcomePrerequisiteMissing {
		t.Errorf("outcome %v, want prerequisite missing", res.Outcome)
	}
	if res.Iterations != 0 || len(sub.submitted) != 0 {
		t.Error("runs were launched despite missing prerequisites")
	}
	if !errors.Is(res.Err, ErrPrerequisite) {
		t.Errorf("failure error %v does not wrap ErrPrerequisite", res.Err)
	}
}

func TestControllerRunLabels(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(3)}
	_, err := newTestController(sub, constantEstimator(1, 1), testCriteria(3, 3)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := []string{"replay_00", "replay_01", "replay_02"}
	for i, l := range want {
		if sub.labels[i] != l {
			t.Errorf("label %d = %q, want %q", i, sub.labels[i], l)
		}
	}
}

func TestControllerRestartSettings(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(2)}
	_, err := newTestController(sub, constantEstimator(1, 1), testCriteria(2, 2)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	first, second := sub.submitted[0], sub.submitted[1]
	if first.VelocitiesFromInput {
		t.Error("first run should draw fresh thermal velocities")
	}
	if !second.VelocitiesFromInput {
		t.Error("restart run must source velocities from input")
	}
	if second.Recenter {
		t.Error("recentring must be disabled on restart")
	}
	if second.CompleteMissing {
		t.Error("CompleteMissing flagged for a full-coverage trajectory")
	}

	// Restart input positions equal the previous segment's final frame.
	seg0 := sub.makeSegment(sub.inputs[0], 0)
	last, _ := seg0.Last()
	for i := range last.Positions {
		if sub.inputs[1].Structure.Positions[i] != last.Positions[i] {
			t.Errorf("restart atom %d not seeded from previous final frame", i)
		}
	}
}

func TestControllerReconstructsReducedTrajectory(t *testing.T) {
	// Engine emits mobile-only segments: 2 of 4 atoms.
	sub := &fakeSubmitter{runs: succeedRuns(2), trajAtoms: 2}
	res, err := newTestController(sub, constantEstimator(1, 1e-9), testCriteria(2, 2)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Outcome != OutcomeConverged {
		t.Fatalf("outcome %v, want converged", res.Outcome)
	}

	second := sub.submitted[1]
	if !second.CompleteMissing {
		t.Error("CompleteMissing not flagged for a mobile-only trajectory")
	}
	if got := sub.inputs[1].Structure.Atoms(); got != 4 {
		t.Errorf("reconstructed input has %d atoms, want 4", got)
	}
}

func TestControllerRestartInconsistencyFatal(t *testing.T) {
	// Second run sees a trajectory wider than the canonical structure.
	sub := &oversizedSubmitter{}
	_, err := newTestController(sub, constantEstimator(1, 1), testCriteria(2, 2)).Run(context.Background())
	if !errors.Is(err, restart.ErrAtomCountExceeded) {
		t.Errorf("expected restart.ErrAtomCountExceeded, got %v", err)
	}
}

// oversizedSubmitter emits segments with more atoms than any structure.
type oversizedSubmitter struct{ calls int }

func (s *oversizedSubmitter) Submit(ctx context.Context, input *restart.Derivation, settings RunSettings, label string) (RunHandle, error) {
	s.calls++
	f := traj.Frame{}
	for i := 0; i < input.Structure.Atoms()+3; i++ {
		f.Positions = append(f.Positions, traj.Vec3{float64(i), 0, 0})
		f.Velocities = append(f.Velocities, traj.Vec3{})
	}
	return &fakeHandle{label: label, status: StatusSucceeded,
		seg: &traj.Trajectory{Frames: []traj.Frame{f}}}, nil
}

func TestControllerCleanup(t *testing.T) {
	sub := &fakeSubmitter{
		runs:     succeedRuns(3),
		cleanErr: map[string]error{"replay_01": errors.New("permission denied")},
	}
	ctrl := newTestController(sub, constantEstimator(1, 1e-9), testCriteria(3, 3))
	ctrl.CleanWorkdirs(true)

	res, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Outcome != OutcomeConverged {
		t.Fatalf("outcome %v, want converged", res.Outcome)
	}
	// The failing run is skipped, the rest are released.
	want := []string{"replay_00", "replay_02"}
	if len(res.Cleaned) != len(want) {
		t.Fatalf("cleaned %v, want %v", res.Cleaned, want)
	}
	for i := range want {
		if res.Cleaned[i] != want[i] {
			t.Errorf("cleaned[%d] = %q, want %q", i, res.Cleaned[i], want[i])
		}
	}
}

func TestControllerCleanupDisabledByDefault(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(1)}
	res, err := newTestController(sub, constantEstimator(1, 1), testCriteria(1, 1)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Cleaned) != 0 || len(sub.cleaned) != 0 {
		t.Error("working storage cleaned without the cleanup flag")
	}
}

func TestControllerCancellation(t *testing.T) {
	blockCh := make(chan struct{})
	submits := make(chan string, 2)
	sub := &fakeSubmitter{
		runs: []scriptedRun{
			{status: StatusSucceeded, emit: true},
			{status: StatusSucceeded, emit: true, blockCh: blockCh},
		},
		submitNotify: submits,
	}
	ctrl := newTestController(sub, constantEstimator(1, 1), testCriteria(2, 2))
	ctrl.CleanWorkdirs(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = ctrl.Run(ctx)
		close(done)
	}()

	// Let the first run complete and the second get dispatched; its Wait
	// blocks until cancellation.
	<-submits
	<-submits
	cancel()
	<-done

	if !errors.Is(runErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", runErr)
	}
	// The completed first run was still cleaned; the in-flight one was not.
	if len(sub.cleaned) != 1 || sub.cleaned[0] != "replay_00" {
		t.Errorf("cleaned %v, want [replay_00]", sub.cleaned)
	}
}

func TestControllerInvalidConfiguration(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(1)}

	bad := New(testCanonical(2, 2), sub, constantEstimator(1, 1),
		Criteria{MinIterations: 3, MaxIterations: 1, SEMThreshold: 1, SEMRelativeThreshold: 1},
		testParams(), RunSettings{})
	if _, err := bad.Run(context.Background()); err == nil {
		t.Error("invalid criteria accepted")
	}

	noSpecies := New(testCanonical(2, 2), sub, constantEstimator(1, 1),
		testCriteria(1, 1), EstimatorParams{FitEnd: 1, Blocks: 1}, RunSettings{})
	if _, err := noSpecies.Run(context.Background()); err == nil {
		t.Error("missing species of interest accepted")
	}
}

func TestControllerSpeciesAbsentIsPrerequisiteFailure(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(1)}
	params := testParams()
	params.SpeciesOfInterest = "Na"

	ctrl := New(testCanonical(2, 2), sub, constantEstimator(1, 1), testCriteria(1, 1), params, RunSettings{})
	res, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Outcome != OutcomePrerequisiteMissing {
		t.Errorf("outcome %v, want prerequisite missing", res.Outcome)
	}
}

func TestControllerHistory(t *testing.T) {
	sub := &fakeSubmitter{runs: succeedRuns(3)}
	est := &scriptedEstimator{estimates: []Estimate{
		{Mean: 1.0, SEM: 1.0},
		{Mean: 1.0, SEM: 0.5},
		{Mean: 1.0, SEM: 1e-6},
	}}

	res, err := newTestController(sub, est, testCriteria(1, 5)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.History) != 3 {
		t.Fatalf("history has %d entries, want 3", len(res.History))
	}
	if res.History[2].Estimate.SEM != 1e-6 || !res.History[2].Converged {
		t.Error("final history entry does not record the converged evaluation")
	}
	if res.History[0].Converged {
		t.Error("first history entry wrongly marked converged")
	}
}
