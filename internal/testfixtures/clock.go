package testfixtures

import (
	"sync"
	"time"
)

// Clock is a controllable time source for service and repository tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock set to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the tracked instant. When a tick step is configured the clock
// moves forward by that step after every read, so consecutive records get
// strictly increasing timestamps.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// NowFunc exposes Now for injection into constructors.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Tick configures the automatic step applied after each Now call.
func (c *Clock) Tick(step time.Duration) *Clock {
	c.mu.Lock()
	c.step = step
	c.mu.Unlock()
	return c
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceTo moves the clock to the next instant strictly after the current
// one that falls on day at hour:minute in the clock's location.
func (c *Clock) AdvanceTo(day time.Weekday, hour, minute int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.current
	candidate := time.Date(cur.Year(), cur.Month(), cur.Day(), hour, minute, 0, 0, cur.Location())
	candidate = candidate.AddDate(0, 0, (int(day)-int(cur.Weekday())+7)%7)
	if !candidate.After(cur) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	c.current = candidate
	return candidate
}

// Current reads the clock without applying the tick step.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
