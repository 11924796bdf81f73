// Package campaign drives sequences of finite-length MD runs until the
// ionic diffusion coefficient estimate is statistically reliable.
//
// The [Controller] owns a state machine
//
//	INIT -> RUNNING -> {CONVERGED, EXHAUSTED, FAILED}
//
// and repeats, once per iteration: derive the next run's input from the
// previous run's final frame, dispatch it through a [Submitter], inspect
// the terminal status, concatenate all completed segments and apply the
// convergence rule to the [Estimator] result. A single abnormal run aborts
// the campaign; exhausting the iteration budget without convergence is a
// reported outcome, not a failure.
//
// # Thread Safety
//
// A Controller is driven by exactly one goroutine. Independent campaigns
// share no mutable state and may run concurrently.
package campaign
