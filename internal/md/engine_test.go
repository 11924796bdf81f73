package md

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/iondiff/internal/traj"
)

func testHost() HostData {
	return HostData{
		Amplitude: 0.15,
		Period:    3.0,
		Masses:    map[string]float64{"Li": 6.94},
	}
}

func testStructure(mobile, host int) traj.Structure {
	s := traj.Structure{
		Cell: [3]traj.Vec3{{12, 0, 0}, {0, 12, 0}, {0, 0, 12}},
	}
	for i := 0; i < mobile; i++ {
		s.Species = append(s.Species, "Li")
		s.Positions = append(s.Positions, traj.Vec3{float64(i), 0.5, 0.5})
	}
	for i := 0; i < host; i++ {
		s.Species = append(s.Species, "O")
		s.Positions = append(s.Positions, traj.Vec3{float64(i), 6, 6})
	}
	return s
}

func TestEngineFirstFrameIsInput(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 10}
	s := testStructure(4, 8)

	tr, err := e.Run(context.Background(), s, 4, RunParams{
		Steps: 50, Timestep: 1.0, Temperature: 600, Seed: 7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() == 0 {
		t.Fatal("empty trajectory")
	}

	first := tr.Frames[0]
	if first.Step != 0 {
		t.Errorf("first frame step = %d, want 0", first.Step)
	}
	for i, p := range s.Positions {
		if first.Positions[i] != p {
			t.Fatalf("atom %d input position not preserved in first frame", i)
		}
	}
}

func TestEngineSamplingAndFinalState(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 10}
	s := testStructure(2, 0)

	tr, err := e.Run(context.Background(), s, 2, RunParams{
		Steps: 25, Timestep: 1.0, Temperature: 600, Seed: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Frames at steps 0, 10, 20 and the always-recorded final step 25.
	wantSteps := []int{0, 10, 20, 25}
	if tr.Len() != len(wantSteps) {
		t.Fatalf("frames = %d, want %d", tr.Len(), len(wantSteps))
	}
	for i, want := range wantSteps {
		if tr.Frames[i].Step != want {
			t.Errorf("frame %d step = %d, want %d", i, tr.Frames[i].Step, want)
		}
	}
}

func TestEngineDeterministic(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 5}
	s := testStructure(3, 3)
	params := RunParams{Steps: 40, Timestep: 1.0, Temperature: 600, Seed: 99}

	a, err := e.Run(context.Background(), s, 3, params)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Run(context.Background(), s, 3, params)
	if err != nil {
		t.Fatal(err)
	}

	if a.Len() != b.Len() {
		t.Fatalf("runs differ in length: %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Frames {
		if !a.Frames[i].Equal(b.Frames[i]) {
			t.Fatalf("frame %d differs between identically seeded runs", i)
		}
	}
}

func TestEngineHostFrozen(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 10}
	s := testStructure(2, 4)

	tr, err := e.Run(context.Background(), s, 2, RunParams{
		Steps: 60, Timestep: 1.0, Temperature: 800, Seed: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	last := tr.Frames[tr.Len()-1]
	for i := 2; i < 6; i++ {
		if last.Positions[i] != s.Positions[i] {
			t.Errorf("host atom %d moved", i)
		}
		if (last.Velocities[i] != traj.Vec3{}) {
			t.Errorf("host atom %d has velocity", i)
		}
	}
}

func TestEngineVelocitiesFromInput(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 10}
	s := testStructure(2, 0)
	vels := []traj.Vec3{{0.01, 0, 0}, {0, -0.02, 0}}

	tr, err := e.Run(context.Background(), s, 2, RunParams{
		Steps: 10, Timestep: 1.0, Temperature: 600, Seed: 1,
		InitVelocities: vels,
	})
	if err != nil {
		t.Fatal(err)
	}
	first := tr.Frames[0]
	for i, v := range vels {
		if first.Velocities[i] != v {
			t.Errorf("atom %d initial velocity %v, want %v", i, first.Velocities[i], v)
		}
	}
}

func TestEngineRecenter(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 10}
	s := testStructure(2, 0)
	vels := []traj.Vec3{{0.02, 0, 0}, {0.02, 0, 0}}

	tr, err := e.Run(context.Background(), s, 2, RunParams{
		Steps: 10, Timestep: 1.0, Temperature: 600, Seed: 1,
		InitVelocities: vels, Recenter: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	first := tr.Frames[0]
	for i := 0; i < 2; i++ {
		if (first.Velocities[i] != traj.Vec3{}) {
			t.Errorf("atom %d velocity %v after recentring a uniform drift, want zero", i, first.Velocities[i])
		}
	}
}

func TestEngineUnstable(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 1.0, SampleEvery: 1}
	s := testStructure(1, 0)

	_, err := e.Run(context.Background(), s, 1, RunParams{
		Steps: 10, Timestep: 1e160, Temperature: 600, Seed: 1,
	})
	if !errors.Is(err, ErrUnstable) {
		t.Errorf("expected ErrUnstable, got %v", err)
	}
}

func TestEngineInputErrors(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 1}
	s := testStructure(2, 0)
	good := RunParams{Steps: 10, Timestep: 1.0, Temperature: 600}

	if _, err := e.Run(context.Background(), s, 0, good); err == nil {
		t.Error("zero mobile atoms accepted")
	}
	if _, err := e.Run(context.Background(), s, 3, good); err == nil {
		t.Error("mobile count beyond structure accepted")
	}

	bad := good
	bad.Steps = 0
	if _, err := e.Run(context.Background(), s, 2, bad); err == nil {
		t.Error("zero steps accepted")
	}

	noMass := &Engine{Host: HostData{Amplitude: 0.1, Period: 3, Masses: map[string]float64{"Na": 23}}, SampleEvery: 1}
	if _, err := noMass.Run(context.Background(), s, 2, good); err == nil {
		t.Error("missing species mass accepted")
	}
}

func TestEngineCancellation(t *testing.T) {
	e := &Engine{Host: testHost(), Friction: 0.05, SampleEvery: 1000}
	s := testStructure(2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, s, 2, RunParams{Steps: 100000, Timestep: 1.0, Temperature: 600})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
