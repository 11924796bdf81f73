package traj

import "math"

// Vec3 is a cartesian position or velocity in angstrom / angstrom-per-fs.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v[0] * f, v[1] * f, v[2] * f}
}

func (v Vec3) Norm2() float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func (v Vec3) IsValid() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Frame is one sampled MD configuration. Step is the engine step index
// within the run that produced the frame.
type Frame struct {
	Step       int
	Positions  []Vec3
	Velocities []Vec3
}

func (f Frame) Atoms() int { return len(f.Positions) }

func (f Frame) Clone() Frame {
	c := Frame{
		Step:       f.Step,
		Positions:  make([]Vec3, len(f.Positions)),
		Velocities: make([]Vec3, len(f.Velocities)),
	}
	copy(c.Positions, f.Positions)
	copy(c.Velocities, f.Velocities)
	return c
}

func (f Frame) IsValid() bool {
	for _, p := range f.Positions {
		if !p.IsValid() {
			return false
		}
	}
	for _, v := range f.Velocities {
		if !v.IsValid() {
			return false
		}
	}
	return true
}

// Equal compares atomic content exactly. The step index is provenance
// metadata and does not participate: a restart frame re-emitted by the
// next run carries a fresh step counter but identical positions and
// velocities.
func (f Frame) Equal(o Frame) bool {
	if len(f.Positions) != len(o.Positions) || len(f.Velocities) != len(o.Velocities) {
		return false
	}
	for i := range f.Positions {
		if f.Positions[i] != o.Positions[i] {
			return false
		}
	}
	for i := range f.Velocities {
		if f.Velocities[i] != o.Velocities[i] {
			return false
		}
	}
	return true
}

// Structure is a simulation-ready supercell: per-atom species, positions
// and the periodic cell vectors. Mobile species occupy the leading atom
// indices so a mobile-only trajectory always maps onto a prefix of the
// structure.
type Structure struct {
	Species   []string
	Positions []Vec3
	Cell      [3]Vec3
}

func (s Structure) Atoms() int { return len(s.Positions) }

func (s Structure) Clone() Structure {
	c := Structure{
		Species:   make([]string, len(s.Species)),
		Positions: make([]Vec3, len(s.Positions)),
		Cell:      s.Cell,
	}
	copy(c.Species, s.Species)
	copy(c.Positions, s.Positions)
	return c
}

// CountSpecies returns the number of atoms of the given species.
func (s Structure) CountSpecies(species string) int {
	n := 0
	for _, sp := range s.Species {
		if sp == species {
			n++
		}
	}
	return n
}

// Trajectory is the time-ordered frame sequence produced by one run, or
// the concatenation of several runs.
type Trajectory struct {
	Frames []Frame
}

func (t *Trajectory) Len() int { return len(t.Frames) }

// Atoms reports the per-frame atom count, 0 for an empty trajectory.
func (t *Trajectory) Atoms() int {
	if len(t.Frames) == 0 {
		return 0
	}
	return t.Frames[0].Atoms()
}

// Last returns the final frame, the restart seed for the next run.
func (t *Trajectory) Last() (Frame, bool) {
	if len(t.Frames) == 0 {
		return Frame{}, false
	}
	return t.Frames[len(t.Frames)-1], true
}

func (t *Trajectory) Clone() *Trajectory {
	c := &Trajectory{Frames: make([]Frame, len(t.Frames))}
	for i, f := range t.Frames {
		c.Frames[i] = f.Clone()
	}
	return c
}
