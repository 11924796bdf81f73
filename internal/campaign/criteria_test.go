package campaign

import "testing"

func TestCriteriaConverged(t *testing.T) {
	crit := Criteria{
		MinIterations:        1,
		MaxIterations:        5,
		SEMThreshold:         1e-5,
		SEMRelativeThreshold: 1e-2,
	}

	tests := []struct {
		name      string
		mean, sem float64
		converged bool
	}{
		{"negative mean regardless of sem", -0.1, 1e-12, false},
		{"sem below absolute threshold", 1.0, 0.5e-5, true},
		{"relative branch", 1.0, 2e-5, true},             // sem/mean = 2e-5 < 1e-2
		{"neither branch", 1e-3, 2e-5, false},            // sem/mean = 2e-2 >= 1e-2
		{"zero mean zero sem", 0.0, 0.0, true},           // absolute branch
		{"sem exactly at absolute threshold", 1e-4, 1e-5, false}, // 1e-5 < 1e-5 false, rel 0.1 >= 1e-2
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := crit.Converged(Estimate{Mean: tt.mean, SEM: tt.sem})
			if got != tt.converged {
				t.Errorf("Converged(mean=%g, sem=%g) = %v, want %v", tt.mean, tt.sem, got, tt.converged)
			}
		})
	}
}

func TestCriteriaShouldContinue(t *testing.T) {
	crit := Criteria{MinIterations: 2, MaxIterations: 5, SEMThreshold: 1, SEMRelativeThreshold: 1}

	tests := []struct {
		name      string
		iteration int
		converged bool
		want      bool
	}{
		{"below floor unconverged", 0, false, true},
		{"below floor converged", 1, true, true},
		{"at floor converged", 2, true, false},
		{"at floor unconverged", 2, false, true},
		{"under ceiling unconverged", 4, false, true},
		{"at ceiling unconverged", 5, false, false},
		{"past ceiling unconverged", 6, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := crit.ShouldContinue(tt.iteration, tt.converged); got != tt.want {
				t.Errorf("ShouldContinue(%d, %v) = %v, want %v", tt.iteration, tt.converged, got, tt.want)
			}
		})
	}
}

func TestCriteriaValidate(t *testing.T) {
	valid := Criteria{MinIterations: 1, MaxIterations: 3, SEMThreshold: 1e-5, SEMRelativeThreshold: 1e-2}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid criteria rejected: %v", err)
	}

	tests := []struct {
		name string
		crit Criteria
	}{
		{"negative min", Criteria{MinIterations: -1, MaxIterations: 3, SEMThreshold: 1, SEMRelativeThreshold: 1}},
		{"zero max", Criteria{MinIterations: 0, MaxIterations: 0, SEMThreshold: 1, SEMRelativeThreshold: 1}},
		{"min above max", Criteria{MinIterations: 4, MaxIterations: 3, SEMThreshold: 1, SEMRelativeThreshold: 1}},
		{"zero sem threshold", Criteria{MinIterations: 1, MaxIterations: 3, SEMRelativeThreshold: 1}},
		{"zero relative threshold", Criteria{MinIterations: 1, MaxIterations: 3, SEMThreshold: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.crit.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
