// Package poll provides a bounded, fixed-delay polling primitive.
package poll

import (
	"context"
	"time"
)

// Policy bounds a poll loop.
type Policy struct {
	// Attempts is the maximum number of checks.
	Attempts int

	// Interval is the wait before each check.
	Interval time.Duration
}

// CheckFunc reports whether the awaited condition holds. A non-nil error ends polling.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Until waits Interval and calls check, up to Attempts times, stopping at the first
// check that reports done or fails. It returns true only if a check reported done.
// A cancelled context ends the wait early with ctx.Err().
func Until(ctx context.Context, policy Policy, check CheckFunc) (bool, error) {
	for i := 0; i < policy.Attempts; i++ {
		if err := wait(ctx, policy.Interval); err != nil {
			return false, err
		}

		done, err := check(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}

	return false, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
