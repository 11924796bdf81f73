package campaign

import (
	"context"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Campaign end to end", func() {
	var (
		sub  *fakeSubmitter
		est  *scriptedEstimator
		crit Criteria
	)

	run := func() *Result {
		ctrl := newTestController(sub, est, crit)
		res, err := ctrl.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	ginkgo.Describe("a campaign that never converges", func() {
		ginkgo.BeforeEach(func() {
			crit = testCriteria(2, 5)
			sub = &fakeSubmitter{runs: succeedRuns(5)}
			est = &scriptedEstimator{estimates: []Estimate{
				{Mean: -0.2, SEM: 1e-9},
				{Mean: -0.2, SEM: 1e-9},
				{Mean: 0.8, SEM: 0.4},
			}}
		})

		ginkgo.It("keeps sampling past the floor while the estimate is negative", func() {
			res := run()
			Expect(res.Iterations).To(Equal(5))
			Expect(res.History[0].Converged).To(BeFalse())
			Expect(res.History[1].Converged).To(BeFalse())
		})

		ginkgo.It("stops exactly at the ceiling and reports exhaustion, not failure", func() {
			res := run()
			Expect(res.Outcome).To(Equal(OutcomeExhausted))
			Expect(res.Outcome.Failed()).To(BeFalse())
			Expect(res.Err).To(BeNil())
		})

		ginkgo.It("still publishes the partial trajectory and the best estimate", func() {
			res := run()
			Expect(res.Trajectory).NotTo(BeNil())
			Expect(res.Trajectory.Len()).To(BeNumerically(">", 0))
			Expect(res.Estimates).To(HaveKey("Li"))
		})
	})

	ginkgo.Describe("a campaign whose third run excepts", func() {
		ginkgo.BeforeEach(func() {
			crit = testCriteria(1, 6)
			sub = &fakeSubmitter{runs: []scriptedRun{
				{status: StatusSucceeded, emit: true},
				{status: StatusSucceeded, emit: true},
				{status: StatusExcepted},
				{status: StatusSucceeded, emit: true},
			}}
			est = constantEstimator(1.0, 1.0)
		})

		ginkgo.It("terminates in FAILED after exactly three runs", func() {
			res := run()
			Expect(res.Outcome).To(Equal(OutcomeSubProcessFailed))
			Expect(res.Iterations).To(Equal(3))
			Expect(sub.labels).To(Equal([]string{"replay_00", "replay_01", "replay_02"}))
		})

		ginkgo.It("keeps the records of the runs that did complete", func() {
			res := run()
			Expect(res.Runs).To(HaveLen(2))
			Expect(res.Runs[0].Status).To(Equal(StatusSucceeded))
		})
	})

	ginkgo.Describe("a campaign that converges on the relative branch", func() {
		ginkgo.BeforeEach(func() {
			crit = testCriteria(1, 10)
			sub = &fakeSubmitter{runs: succeedRuns(10)}
			// sem is far above the absolute threshold but sem/mean is small.
			est = &scriptedEstimator{estimates: []Estimate{
				{Mean: 1.0, SEM: 0.5},
				{Mean: 1.0, SEM: 2e-5 * 100},
			}}
		})

		ginkgo.It("converges once the relative error drops below target", func() {
			res := run()
			Expect(res.Outcome).To(Equal(OutcomeConverged))
			Expect(res.Iterations).To(Equal(2))
			Expect(res.Estimates["Li"].SEM).To(BeNumerically(">", crit.SEMThreshold))
		})
	})

	ginkgo.Describe("the accumulated trajectory", func() {
		ginkgo.BeforeEach(func() {
			crit = testCriteria(3, 3)
			sub = &fakeSubmitter{runs: succeedRuns(3)}
			est = constantEstimator(1.0, 1.0)
		})

		ginkgo.It("contains each boundary frame exactly once", func() {
			res := run()
			// Three two-frame segments, two shared boundary frames dropped.
			Expect(res.Trajectory.Len()).To(Equal(3*2 - 2))
			for i := 1; i < res.Trajectory.Len(); i++ {
				Expect(res.Trajectory.Frames[i].Equal(res.Trajectory.Frames[i-1])).To(BeFalse())
			}
		})
	})
})
