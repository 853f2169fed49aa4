// Package clock provides the gateway's wall clock, which is rebased from the
// time source at startup and on every resync.
package clock

import (
	"sync"
	"time"
)

// Clock is a wall clock expressed as an offset from the local clock. Until
// the first Rebase it reports the local time unchanged.
type Clock struct {
	mu       sync.RWMutex
	offset   time.Duration
	rebased  bool
	lastSync time.Time
	now      func() time.Time
}

// New returns a clock reading from now (time.Now if nil).
func New(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns the current rebased time in UTC.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset).UTC().Round(0)
}

// Rebase sets the clock so that Now returns epoch seconds at this instant.
// It returns the step applied.
func (c *Clock) Rebase(epoch int64) time.Duration {
	local := c.now()
	target := time.Unix(epoch, 0)

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.offset
	c.offset = target.Sub(local.Round(0))
	c.rebased = true
	c.lastSync = target
	return c.offset - prev
}

// Rebased reports whether Rebase has been called.
func (c *Clock) Rebased() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rebased
}

// LastSync returns the time set by the last Rebase, or zero.
func (c *Clock) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}
