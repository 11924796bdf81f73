package traj

import "errors"

var (
	// ErrNoSegments indicates concatenation was asked to merge nothing.
	ErrNoSegments = errors.New("traj: no segments to concatenate")

	// ErrEmptySegment indicates a run produced a trajectory without frames.
	ErrEmptySegment = errors.New("traj: segment has no frames")
)

// Concatenate merges run segments in launch order into one trajectory.
// Where segment k+1 opens by restating the final frame of segment k (the
// restart frame used to seed it), the duplicate is dropped exactly once.
// The function is pure: the same input list always yields the same output,
// and a single segment passes through unchanged.
func Concatenate(segments []*Trajectory) (*Trajectory, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	for _, seg := range segments {
		if seg == nil || seg.Len() == 0 {
			return nil, ErrEmptySegment
		}
	}

	total := 0
	for _, seg := range segments {
		total += seg.Len()
	}

	out := &Trajectory{Frames: make([]Frame, 0, total)}
	for _, seg := range segments {
		frames := seg.Frames
		if n := len(out.Frames); n > 0 && frames[0].Equal(out.Frames[n-1]) {
			frames = frames[1:]
		}
		for _, f := range frames {
			out.Frames = append(out.Frames, f.Clone())
		}
	}
	return out, nil
}
