package md

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/iondiff/internal/campaign"
	"github.com/san-kum/iondiff/internal/restart"
	"github.com/san-kum/iondiff/internal/traj"
)

// LocalSubmitter runs MD in-process, one goroutine per run, with a working
// directory per label under workRoot. It satisfies [campaign.Submitter],
// [campaign.Cleaner] and [campaign.PrereqChecker].
type LocalSubmitter struct {
	workRoot     string
	hostDataPath string
	engine       *Engine
	// MobileOnly trims recorded frames to the mobile prefix, mirroring
	// production pipelines that only archive the diffusing species.
	MobileOnly bool
	// MobileSpecies marks which atoms the engine integrates.
	MobileSpecies string
}

func NewLocalSubmitter(workRoot, hostDataPath string, engine *Engine, mobileSpecies string) *LocalSubmitter {
	return &LocalSubmitter{
		workRoot:      workRoot,
		hostDataPath:  hostDataPath,
		engine:        engine,
		MobileSpecies: mobileSpecies,
	}
}

// CheckPrereqs verifies the host-lattice artifact exists and parses.
func (s *LocalSubmitter) CheckPrereqs() error {
	host, err := LoadHostData(s.hostDataPath)
	if err != nil {
		return fmt.Errorf("host data at %s: %w", s.hostDataPath, err)
	}
	if _, ok := host.Masses[s.MobileSpecies]; !ok {
		return fmt.Errorf("host data at %s: no mass for mobile species %s", s.hostDataPath, s.MobileSpecies)
	}
	return nil
}

// Clean removes the working directory of a completed run.
func (s *LocalSubmitter) Clean(label string) error {
	return os.RemoveAll(filepath.Join(s.workRoot, label))
}

type runInputs struct {
	Label           string               `json:"label"`
	Settings        campaign.RunSettings `json:"settings"`
	Atoms           int                  `json:"atoms"`
	Mobile          int                  `json:"mobile"`
	CompleteMissing bool                 `json:"complete_missing"`
}

func (s *LocalSubmitter) Submit(ctx context.Context, input *restart.Derivation, settings campaign.RunSettings, label string) (campaign.RunHandle, error) {
	mobile := 0
	for _, sp := range input.Structure.Species {
		if sp != s.MobileSpecies {
			break
		}
		mobile++
	}
	if mobile == 0 {
		return nil, fmt.Errorf("md: structure has no leading %s atoms", s.MobileSpecies)
	}

	dir := filepath.Join(s.workRoot, label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := writeInputs(dir, runInputs{
		Label:           label,
		Settings:        settings,
		Atoms:           input.Structure.Atoms(),
		Mobile:          mobile,
		CompleteMissing: input.CompleteMissing,
	}); err != nil {
		return nil, err
	}

	h := &localHandle{label: label, done: make(chan struct{})}

	params := RunParams{
		Steps:       settings.Steps,
		Timestep:    settings.Timestep,
		Temperature: settings.Temperature,
		Seed:        settings.Seed,
		Recenter:    settings.Recenter,
	}
	if settings.VelocitiesFromInput {
		params.InitVelocities = input.Velocities
	}
	structure := input.Structure.Clone()

	go func() {
		defer close(h.done)
		tr, err := s.engine.Run(ctx, structure, mobile, params)
		switch {
		case err == nil:
			if s.MobileOnly {
				tr = trimToMobile(tr, mobile)
			}
			h.trajectory = tr
			h.status = campaign.StatusSucceeded
		case ctx.Err() != nil:
			h.status = campaign.StatusKilled
			h.err = ctx.Err()
		default:
			h.status = campaign.StatusExcepted
			h.err = err
		}
	}()
	return h, nil
}

func writeInputs(dir string, in runInputs) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "inputs.json"), data, 0644)
}

func trimToMobile(tr *traj.Trajectory, mobile int) *traj.Trajectory {
	out := &traj.Trajectory{Frames: make([]traj.Frame, len(tr.Frames))}
	for i, f := range tr.Frames {
		out.Frames[i] = traj.Frame{
			Step:       f.Step,
			Positions:  append([]traj.Vec3(nil), f.Positions[:mobile]...),
			Velocities: append([]traj.Vec3(nil), f.Velocities[:mobile]...),
		}
	}
	return out
}

type localHandle struct {
	label      string
	done       chan struct{}
	status     campaign.Status
	err        error
	trajectory *traj.Trajectory
}

func (h *localHandle) Label() string { return h.label }

func (h *localHandle) Wait(ctx context.Context) (campaign.Status, error) {
	select {
	case <-ctx.Done():
		return campaign.StatusRunning, ctx.Err()
	case <-h.done:
		return h.status, h.err
	}
}

func (h *localHandle) Trajectory() (*traj.Trajectory, bool) {
	select {
	case <-h.done:
	default:
		return nil, false
	}
	if h.status != campaign.StatusSucceeded || h.trajectory == nil {
		return nil, false
	}
	return h.trajectory, true
}
