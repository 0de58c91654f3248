package game

import (
	"time"
)

// Clock tracks the current round's countdown. Remaining time is recomputed
// from the start instant on every query, never decremented, so suspended tabs
// and slow ticks cannot drift it.
type Clock struct {
	startedAt time.Time
	duration  time.Duration
	now       func() time.Time
}

// NewClock returns a stopped clock. now may be nil for wall time; tests
// inject their own.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Reset starts a fresh countdown of the given duration.
func (c *Clock) Reset(d time.Duration) {
	c.startedAt = c.now()
	c.duration = d
}

// StartedAt is the instant of the last Reset.
func (c *Clock) StartedAt() time.Time {
	return c.startedAt
}

// Remaining is max(0, duration - (now - startedAt)).
func (c *Clock) Remaining() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	left := c.duration - c.now().Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the countdown has run out.
func (c *Clock) Expired() bool {
	return c.Remaining() == 0
}
