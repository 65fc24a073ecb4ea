package poll_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threadrelay/pkg/poll"
)

var _ = Describe("Until", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("stops at the first check that reports done", func() {
		calls := 0
		done, err := poll.Until(ctx, poll.Policy{Attempts: 10, Interval: time.Millisecond}, func(context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeTrue())
		Expect(calls).To(Equal(3))
	})

	It("gives up after the configured number of attempts", func() {
		calls := 0
		done, err := poll.Until(ctx, poll.Policy{Attempts: 60, Interval: 0}, func(context.Context) (bool, error) {
			calls++
			return false, nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())
		Expect(calls).To(Equal(60))
	})

	It("does not check at all with zero attempts", func() {
		calls := 0
		done, err := poll.Until(ctx, poll.Policy{}, func(context.Context) (bool, error) {
			calls++
			return true, nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())
		Expect(calls).To(BeZero())
	})

	It("returns the first check error without further checks", func() {
		boom := errors.New("boom")
		calls := 0
		done, err := poll.Until(ctx, poll.Policy{Attempts: 5}, func(context.Context) (bool, error) {
			calls++
			return false, boom
		})

		Expect(err).To(MatchError(boom))
		Expect(done).To(BeFalse())
		Expect(calls).To(Equal(1))
	})

	It("waits the interval before each check", func() {
		start := time.Now()
		_, err := poll.Until(ctx, poll.Policy{Attempts: 3, Interval: 10 * time.Millisecond}, func(context.Context) (bool, error) {
			return false, nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(time.Since(start)).To(BeNumerically(">=", 30*time.Millisecond))
	})

	It("stops waiting when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		calls := 0
		done, err := poll.Until(cctx, poll.Policy{Attempts: 5, Interval: time.Hour}, func(context.Context) (bool, error) {
			calls++
			return true, nil
		})

		Expect(err).To(MatchError(context.Canceled))
		Expect(done).To(BeFalse())
		Expect(calls).To(BeZero())
	})
})
