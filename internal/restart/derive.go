// Package restart derives the input configuration for the next MD run
// from the final frame of the previous run's trajectory.
package restart

import (
	"errors"
	"fmt"

	"github.com/san-kum/iondiff/internal/traj"
)

var (
	// ErrEmptyTrajectory indicates the previous run produced no frames.
	ErrEmptyTrajectory = errors.New("restart: previous trajectory has no frames")

	// ErrAtomCountExceeded indicates the trajectory covers more atoms than
	// the canonical structure, which can never happen for a well-formed
	// campaign.
	ErrAtomCountExceeded = errors.New("restart: trajectory atom count exceeds canonical structure")
)

// Derivation is the input configuration for the next run. Structure carries
// the (possibly reconstructed) positions; Velocities holds one vector per
// structure atom, taken from the restart frame where the trajectory covered
// that atom and zero for re-attached static sites.
type Derivation struct {
	Structure  traj.Structure
	Velocities []traj.Vec3

	// CompleteMissing is set when the trajectory covered only a subset of
	// the structure's atoms and the remainder were re-attached from the
	// canonical structure. The downstream run must know those sites were
	// synthesized rather than simulated.
	CompleteMissing bool
}

// Derive builds the restart configuration from the last frame of prev.
//
// When the frame covers every atom of the canonical structure, positions
// and velocities are taken from it verbatim. When it covers fewer atoms (a
// mobile-subset-only trajectory), the missing trailing sites are re-attached
// from the canonical structure, which is assumed static for those atoms.
// The configuration is never recentred: recentring on restart introduces
// drift artifacts across run boundaries.
func Derive(prev *traj.Trajectory, canonical traj.Structure) (*Derivation, error) {
	last, ok := prev.Last()
	if !ok {
		return nil, ErrEmptyTrajectory
	}

	n := last.Atoms()
	m := canonical.Atoms()
	if n > m {
		return nil, fmt.Errorf("%w: %d > %d", ErrAtomCountExceeded, n, m)
	}

	d := &Derivation{
		Structure:  canonical.Clone(),
		Velocities: make([]traj.Vec3, m),
	}
	copy(d.Structure.Positions, last.Positions)
	copy(d.Velocities, last.Velocities)

	if n < m {
		d.CompleteMissing = true
	}
	return d, nil
}
