package md

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/iondiff/internal/traj"
)

// ErrUnstable indicates the integration produced non-finite coordinates.
var ErrUnstable = errors.New("md: integration became unstable")

const (
	// Boltzmann constant in eV/K.
	kBoltzmann = 8.617333e-5
	// Conversion from eV/(angstrom*amu) to angstrom/fs^2.
	accelUnit = 9.648533e-3
)

// Engine integrates Langevin dynamics of mobile ions in the effective
// corrugation potential of a frozen host framework. Positions are kept
// unwrapped so displacement statistics remain meaningful across cell
// boundaries.
type Engine struct {
	Host        HostData
	Friction    float64 // inverse fs
	SampleEvery int
}

// RunParams are the per-run integration knobs.
type RunParams struct {
	Steps       int
	Timestep    float64 // fs
	Temperature float64 // K
	Seed        int64
	// InitVelocities seeds the mobile velocities verbatim when non-nil;
	// otherwise they are drawn from a Maxwell-Boltzmann distribution.
	InitVelocities []traj.Vec3
	// Recenter removes the mean initial mobile velocity.
	Recenter bool
}

// Run integrates the first mobile atoms of structure and returns the
// sampled trajectory over all atoms. The first frame is always the input
// configuration and the final state is always recorded.
func (e *Engine) Run(ctx context.Context, structure traj.Structure, mobile int, params RunParams) (*traj.Trajectory, error) {
	if mobile <= 0 || mobile > structure.Atoms() {
		return nil, fmt.Errorf("md: mobile count %d out of range for %d atoms", mobile, structure.Atoms())
	}
	if params.Steps <= 0 {
		return nil, fmt.Errorf("md: steps must be positive, got %d", params.Steps)
	}
	if params.Timestep <= 0 {
		return nil, fmt.Errorf("md: timestep must be positive, got %g", params.Timestep)
	}
	sampleEvery := e.SampleEvery
	if sampleEvery <= 0 {
		sampleEvery = 1
	}

	masses := make([]float64, mobile)
	for i := 0; i < mobile; i++ {
		m, ok := e.Host.Masses[structure.Species[i]]
		if !ok {
			return nil, fmt.Errorf("md: no mass for species %s", structure.Species[i])
		}
		masses[i] = m
	}

	rng := rand.New(rand.NewSource(params.Seed))
	atoms := structure.Atoms()
	pos := make([]traj.Vec3, atoms)
	copy(pos, structure.Positions)

	vel := make([]traj.Vec3, atoms)
	if params.InitVelocities != nil {
		if len(params.InitVelocities) < mobile {
			return nil, fmt.Errorf("md: %d initial velocities for %d mobile atoms", len(params.InitVelocities), mobile)
		}
		copy(vel[:mobile], params.InitVelocities[:mobile])
	} else {
		for i := 0; i < mobile; i++ {
			sigma := math.Sqrt(kBoltzmann * params.Temperature * accelUnit / masses[i])
			for d := 0; d < 3; d++ {
				vel[i][d] = sigma * rng.NormFloat64()
			}
		}
	}

	if params.Recenter {
		var drift traj.Vec3
		for i := 0; i < mobile; i++ {
			drift = drift.Add(vel[i])
		}
		drift = drift.Scale(1 / float64(mobile))
		for i := 0; i < mobile; i++ {
			vel[i] = vel[i].Sub(drift)
		}
	}

	tr := &traj.Trajectory{}
	record := func(step int) {
		frame := traj.Frame{
			Step:       step,
			Positions:  make([]traj.Vec3, atoms),
			Velocities: make([]traj.Vec3, atoms),
		}
		copy(frame.Positions, pos)
		copy(frame.Velocities, vel)
		tr.Frames = append(tr.Frames, frame)
	}
	record(0)

	dt := params.Timestep
	gamma := e.Friction
	for step := 1; step <= params.Steps; step++ {
		select {
		case <-ctx.Done():
			return tr, ctx.Err()
		default:
		}

		for i := 0; i < mobile; i++ {
			m := masses[i]
			noise := math.Sqrt(2 * gamma * kBoltzmann * params.Temperature * accelUnit / m * dt)
			for d := 0; d < 3; d++ {
				f := e.corrugationForce(pos[i][d])
				vel[i][d] += dt*(f/m*accelUnit-gamma*vel[i][d]) + noise*rng.NormFloat64()
				pos[i][d] += vel[i][d] * dt
			}
		}

		if !finite(pos[:mobile]) || !finite(vel[:mobile]) {
			return tr, fmt.Errorf("%w: step %d", ErrUnstable, step)
		}
		if step%sampleEvery == 0 || step == params.Steps {
			record(step)
		}
	}
	return tr, nil
}

// corrugationForce is the force of the host potential along one axis. The
// potential is separable, with wells of depth Amplitude repeating every
// Period angstrom.
func (e *Engine) corrugationForce(x float64) float64 {
	if e.Host.Amplitude == 0 {
		return 0
	}
	k := 2 * math.Pi / e.Host.Period
	return -0.5 * e.Host.Amplitude * k * math.Sin(k*x)
}

func finite(vs []traj.Vec3) bool {
	for _, v := range vs {
		for d := 0; d < 3; d++ {
			if math.IsNaN(v[d]) || math.IsInf(v[d], 0) {
				return false
			}
		}
	}
	return true
}
