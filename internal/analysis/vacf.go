// Package analysis extracts dynamical signatures from sampled trajectories:
// the velocity autocorrelation, a Green-Kubo diffusion estimate and the
// vibrational spectrum. It complements the displacement-based estimator
// with an independent cross-check.
package analysis

import (
	"errors"
	"fmt"

	"github.com/san-kum/iondiff/internal/traj"
)

var ErrNoVelocities = errors.New("analysis: trajectory carries no velocities")

// VACF computes the velocity autocorrelation <v(0)·v(t)> over the first
// atoms atoms, averaged over all time origins, for lags [0, maxLag).
func VACF(tr *traj.Trajectory, atoms, maxLag int) ([]float64, error) {
	if tr.Len() < 2 {
		return nil, fmt.Errorf("analysis: %d frames, need at least 2", tr.Len())
	}
	if atoms <= 0 || atoms > tr.Atoms() {
		return nil, fmt.Errorf("analysis: atom count %d out of range for %d atoms", atoms, tr.Atoms())
	}
	if maxLag <= 0 || maxLag > tr.Len() {
		return nil, fmt.Errorf("analysis: lag window %d out of range for %d frames", maxLag, tr.Len())
	}
	for _, f := range tr.Frames {
		if len(f.Velocities) < atoms {
			return nil, ErrNoVelocities
		}
	}

	out := make([]float64, maxLag)
	for lag := 0; lag < maxLag; lag++ {
		var sum float64
		origins := tr.Len() - lag
		for o := 0; o < origins; o++ {
			a := tr.Frames[o].Velocities
			b := tr.Frames[o+lag].Velocities
			for i := 0; i < atoms; i++ {
				for d := 0; d < 3; d++ {
					sum += a[i][d] * b[i][d]
				}
			}
		}
		out[lag] = sum / float64(origins*atoms)
	}
	return out, nil
}

// Normalize scales a correlation so it starts at 1. An identically zero
// input is returned unchanged.
func Normalize(c []float64) []float64 {
	if len(c) == 0 || c[0] == 0 {
		return c
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = v / c[0]
	}
	return out
}

// GreenKubo integrates the unnormalized VACF with the trapezoid rule:
// D = (1/3) * integral of <v(0)·v(t)> dt, with dt the frame spacing.
func GreenKubo(vacf []float64, dt float64) float64 {
	if len(vacf) < 2 {
		return 0
	}
	var integral float64
	for i := 1; i < len(vacf); i++ {
		integral += 0.5 * (vacf[i-1] + vacf[i]) * dt
	}
	return integral / 3
}
