// Package msd estimates diffusion coefficients from mean-squared
// displacement. It is the reference implementation of the campaign's
// Estimator interface: MSD over multiple time origins, a linear fit in
// the diffusive window, D = slope/6 by the Einstein relation, and a
// standard error either from block averaging or from the fit itself.
package msd

import (
	"errors"
	"fmt"

	"github.com/san-kum/iondiff/internal/campaign"
	"github.com/san-kum/iondiff/internal/traj"
)

var (
	// ErrTooShort indicates the trajectory does not cover the fit window
	// after equilibration (per block, when block averaging).
	ErrTooShort = errors.New("msd: trajectory too short for fit window")

	// ErrAtomMismatch indicates the trajectory covers more atoms than the
	// structure describes.
	ErrAtomMismatch = errors.New("msd: trajectory atom count exceeds structure")
)

// Estimator computes per-species diffusion estimates. Timestep is the
// physical time in fs between consecutive trajectory frames.
type Estimator struct {
	Timestep float64
}

func NewEstimator(timestep float64) *Estimator {
	return &Estimator{Timestep: timestep}
}

// Estimate implements campaign.Estimator. The trajectory may cover only
// the leading atoms of the structure (a mobile-subset trajectory); species
// are resolved against that prefix.
func (e *Estimator) Estimate(structure traj.Structure, trajectory *traj.Trajectory, params campaign.EstimatorParams) (map[string]campaign.Estimate, error) {
	if e.Timestep <= 0 {
		return nil, fmt.Errorf("msd: timestep must be positive, got %g", e.Timestep)
	}
	atoms := trajectory.Atoms()
	if atoms > structure.Atoms() {
		return nil, fmt.Errorf("%w: %d > %d", ErrAtomMismatch, atoms, structure.Atoms())
	}

	frames := trajectory.Frames
	if params.EquilibrationFrames >= len(frames) {
		return nil, fmt.Errorf("%w: %d frames, %d equilibration", ErrTooShort, len(frames), params.EquilibrationFrames)
	}
	frames = frames[params.EquilibrationFrames:]

	blocks := params.Blocks
	if blocks < 1 {
		blocks = 1
	}
	blockLen := len(frames) / blocks
	if blockLen <= params.FitEnd {
		return nil, fmt.Errorf("%w: block of %d frames, fit window ends at %d", ErrTooShort, blockLen, params.FitEnd)
	}

	bySpecies := make(map[string][]int)
	for i := 0; i < atoms; i++ {
		sp := structure.Species[i]
		bySpecies[sp] = append(bySpecies[sp], i)
	}

	out := make(map[string]campaign.Estimate, len(bySpecies))
	for sp, indices := range bySpecies {
		est, err := e.estimateSpecies(frames, indices, params, blocks, blockLen)
		if err != nil {
			return nil, fmt.Errorf("msd: species %s: %w", sp, err)
		}
		out[sp] = est
	}
	return out, nil
}

func (e *Estimator) estimateSpecies(frames []traj.Frame, indices []int, params campaign.EstimatorParams, blocks, blockLen int) (campaign.Estimate, error) {
	ds := make([]float64, 0, blocks)
	var lastStderr float64

	for b := 0; b < blocks; b++ {
		block := frames[b*blockLen : (b+1)*blockLen]

		taus := make([]float64, 0, params.FitEnd-params.FitStart)
		curve := make([]float64, 0, params.FitEnd-params.FitStart)
		for tau := params.FitStart; tau < params.FitEnd; tau++ {
			m, ok := msdAtLag(block, indices, tau)
			if !ok {
				return campaign.Estimate{}, ErrTooShort
			}
			taus = append(taus, float64(tau)*e.Timestep)
			curve = append(curve, m)
		}

		slope, _, stderr, err := Linfit(taus, curve)
		if err != nil {
			return campaign.Estimate{}, err
		}
		ds = append(ds, slope/6)
		lastStderr = stderr / 6
	}

	if blocks == 1 {
		// No block scatter to average; the fit's own slope error stands in.
		return campaign.Estimate{Mean: ds[0], SEM: lastStderr}, nil
	}
	mean, sem := meanSEM(ds)
	return campaign.Estimate{Mean: mean, SEM: sem}, nil
}

// msdAtLag averages the squared displacement over all atoms in indices and
// all time origins that fit in the block.
func msdAtLag(frames []traj.Frame, indices []int, tau int) (float64, bool) {
	origins := len(frames) - tau
	if origins < 1 || len(indices) == 0 {
		return 0, false
	}

	var sum float64
	for t0 := 0; t0 < origins; t0++ {
		a, b := frames[t0], frames[t0+tau]
		for _, i := range indices {
			sum += b.Positions[i].Sub(a.Positions[i]).Norm2()
		}
	}
	return sum / float64(origins*len(indices)), true
}
