package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

// Arbiter decides when a decoded reading is stable enough to publish and
// tracks the deadlines that keep the gateway honest: the liveness ceiling
// and the periodic clock resync.
type Arbiter struct {
	cfg Config

	last      decoder.Reading
	have      bool
	count     int
	published bool

	lastPublish time.Time
	failures    int

	lastResync    time.Time
	lastAttempt   time.Time
	resyncPending bool
}

// NewArbiter creates an arbiter. boot seeds both the liveness and the resync
// deadlines, so a gateway that never publishes is declared dead one ceiling
// after boot.
func NewArbiter(cfg Config, boot time.Time) *Arbiter {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Arbiter{
		cfg:         cfg,
		lastPublish: boot,
		lastResync:  boot,
	}
}

// Observe records a decoded reading and reports whether it should be
// published now. The returned reading carries the latest frame's id, channel
// and battery flag.
//
// A reading that differs from the tracked one restarts the count at 1 and
// clears the published latch. The count saturates at the threshold.
func (a *Arbiter) Observe(r decoder.Reading, now time.Time) (decoder.Reading, bool) {
	if !a.have || !a.last.Same(r) {
		a.have = true
		a.count = 1
		a.published = false
	} else if a.count < a.cfg.Threshold {
		a.count++
	}
	a.last = r

	if a.count < a.cfg.Threshold || a.published {
		return decoder.Reading{}, false
	}
	if now.Sub(a.lastPublish) < a.cfg.MinInterval {
		return decoder.Reading{}, false
	}
	return a.last, true
}

// Published records a successful publish of the tracked reading.
func (a *Arbiter) Published(now time.Time) {
	a.published = true
	a.lastPublish = now
	a.failures = 0
}

// PublishFailed records a failed publish. The reading stays eligible and is
// retried on the next equal frame.
func (a *Arbiter) PublishFailed() {
	a.failures++
}

// CheckLiveness returns a *FatalError once more than the ceiling has passed
// since the last successful publish (or boot). A zero ceiling disables it.
func (a *Arbiter) CheckLiveness(now time.Time) error {
	if a.cfg.Ceiling <= 0 {
		return nil
	}
	if since := now.Sub(a.lastPublish); since > a.cfg.Ceiling {
		return &FatalError{
			Reason: fmt.Sprintf("last publish %s ago (%d failed since)", since.Truncate(time.Second), a.failures),
			Err:    ErrLivenessExceeded,
		}
	}
	return nil
}

// ResyncDue reports whether a clock resync should be attempted now. After a
// failure, attempts are spaced by the retry interval.
func (a *Arbiter) ResyncDue(now time.Time) bool {
	if a.cfg.ResyncInterval <= 0 {
		return false
	}
	if now.Sub(a.lastResync) < a.cfg.ResyncInterval {
		return false
	}
	return !a.resyncPending || now.Sub(a.lastAttempt) >= a.cfg.ResyncRetry
}

// Resynced records a successful clock resync.
func (a *Arbiter) Resynced(now time.Time) {
	a.lastResync = now
	a.resyncPending = false
}

// ResyncFailed records a failed resync attempt.
func (a *Arbiter) ResyncFailed(now time.Time) {
	a.lastAttempt = now
	a.resyncPending = true
}

// State returns the publish state of the tracked reading.
func (a *Arbiter) State() State {
	switch {
	case !a.have:
		return StateUnset
	case a.count < a.cfg.Threshold:
		return StateTracking
	case a.published:
		return StatePublished
	default:
		return StatePending
	}
}

// Current returns the tracked reading, if any.
func (a *Arbiter) Current() (decoder.Reading, bool) {
	return a.last, a.have
}

// Snapshot returns a copy of the arbiter state.
func (a *Arbiter) Snapshot() Snapshot {
	return Snapshot{
		State:       a.State(),
		Count:       a.count,
		LastPublish: a.lastPublish,
		LastResync:  a.lastResync,
	}
}
