package campaign

import "fmt"

// Criteria are the immutable convergence thresholds of a campaign. All
// fields are mandatory; there are no implicit defaults.
type Criteria struct {
	MinIterations int
	MaxIterations int
	// SEMThreshold is the absolute standard-error target.
	SEMThreshold float64
	// SEMRelativeThreshold is the target for sem/mean.
	SEMRelativeThreshold float64
}

func (c Criteria) Validate() error {
	if c.MinIterations < 0 {
		return fmt.Errorf("min iterations must be >= 0, got %d", c.MinIterations)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.MinIterations > c.MaxIterations {
		return fmt.Errorf("min iterations %d exceeds max iterations %d", c.MinIterations, c.MaxIterations)
	}
	if c.SEMThreshold <= 0 {
		return fmt.Errorf("sem threshold must be positive, got %g", c.SEMThreshold)
	}
	if c.SEMRelativeThreshold <= 0 {
		return fmt.Errorf("relative sem threshold must be positive, got %g", c.SEMRelativeThreshold)
	}
	return nil
}

// Converged applies the convergence rule to one estimate. A negative mean
// is physically meaningless and means the sampling is insufficient, so it
// never converges regardless of its error. Otherwise the absolute error
// check runs before the relative one; satisfying either converges.
func (c Criteria) Converged(e Estimate) bool {
	if e.Mean < 0 {
		return false
	}
	if e.SEM < c.SEMThreshold {
		return true
	}
	if e.SEM/e.Mean < c.SEMRelativeThreshold {
		return true
	}
	return false
}

// ShouldContinue is the controller's continue predicate: keep launching
// while the sampling floor has not been met, and past it while still
// unconverged and under the iteration ceiling.
func (c Criteria) ShouldContinue(iteration int, converged bool) bool {
	if iteration < c.MinIterations {
		return true
	}
	return !converged && iteration < c.MaxIterations
}
