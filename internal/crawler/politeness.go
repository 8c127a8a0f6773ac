package crawler

import (
	"context"
	"time"
)

// timerPauser sleeps on a timer and wakes early when ctx ends.
type timerPauser struct{}

// Pause blocks for delay or until ctx is done, returning ctx.Err in that case.
func (timerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// failureCounter tracks consecutive failures against a cooldown threshold.
type failureCounter struct {
	count     int
	threshold int
}

// add increments the counter and reports whether the threshold was reached.
func (c *failureCounter) add(weight int) bool {
	c.count += weight
	return c.count >= c.threshold
}

func (c *failureCounter) reset() {
	c.count = 0
}
