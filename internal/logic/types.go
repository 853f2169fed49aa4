// Package logic contains the pure publish-arbitration logic of the gateway.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters; callers pass monotonic
// readings so that clock rebases never move arbitration deadlines.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// State is the arbiter's publish state for the tracked reading.
type State string

const (
	// StateUnset: no reading decoded yet.
	StateUnset State = "UNSET"
	// StateTracking: a reading seen fewer than Threshold consecutive times.
	StateTracking State = "TRACKING"
	// StatePending: stable, waiting for the interval or a successful publish.
	StatePending State = "PENDING"
	// StatePublished: stable and published; latched until the reading changes.
	StatePublished State = "PUBLISHED"
)

// Config holds the arbitration policy.
type Config struct {
	// Threshold is the number of consecutive equal readings before publishing.
	Threshold int
	// MinInterval is the minimum time between successful publishes.
	MinInterval time.Duration
	// Ceiling is the longest tolerated time without a successful publish.
	Ceiling time.Duration
	// ResyncInterval is the time between successful clock resyncs.
	ResyncInterval time.Duration
	// ResyncRetry is the minimum time between resync attempts after a failure.
	ResyncRetry time.Duration
}

// DefaultConfig returns the reference policy.
func DefaultConfig() Config {
	return Config{
		Threshold:      3,
		MinInterval:    5 * time.Second,
		Ceiling:        360 * time.Second,
		ResyncInterval: 10000 * time.Second,
		ResyncRetry:    time.Minute,
	}
}

// ErrLivenessExceeded is wrapped by the FatalError returned when no publish
// has succeeded within the ceiling.
var ErrLivenessExceeded = errors.New("no successful publish within liveness ceiling")

// FatalError is an unrecoverable condition. It is returned up to main, which
// exits so that the supervisor restarts the process; it is never retried.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return "fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Snapshot is a point-in-time copy of the arbiter state for status reporting.
type Snapshot struct {
	State       State
	Count       int
	LastPublish time.Time
	LastResync  time.Time
}
