package service_test

import "time"

// stepClock is a hand-settable clock for the black-box service tests.
type stepClock struct {
	now time.Time
}

func newStepClock(now time.Time) *stepClock { return &stepClock{now: now} }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
