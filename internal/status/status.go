// Package status provides a thread-safe status tracker for the gateway.
// It is written by the control loop and read by HTTP handlers and the
// lifecycle events.
package status

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
	"github.com/sweeney/ook-gateway/internal/gpio"
	"github.com/sweeney/ook-gateway/internal/logic"
)

// Config contains gateway configuration for display.
type Config struct {
	Broker        string
	ClientID      string
	Protocol      int
	Chip          string
	Line          int
	Channel       int
	NTPServer     string
	StableCount   int
	MinIntervalMs int64
	LivenessMs    int64
	ResyncMs      int64
	HTTPAddr      string
}

// DecodeCounts counts receive outcomes by kind.
type DecodeCounts struct {
	Decoded     int
	Length      int
	Pulse       int
	Sample      int
	Channel     int
	Temperature int
	Overrun     int
	Other       int
}

// Snapshot is a point-in-time view of gateway state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Reading     decoder.Reading
	HaveReading bool
	Arbiter     logic.Snapshot
	Decode      DecodeCounts

	Published     int
	PublishFailed int
	LastPublish   time.Time // wall clock, zero until the first publish
	LastResync    time.Time // wall clock, zero until the first sync
	ResyncFailed  int
	LastError     string

	LinkUp       bool
	DroppedEdges uint64

	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the gateway started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable gateway state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update sets the arbiter state and the tracked reading.
// Called from the control loop after every decoded frame.
func (t *Tracker) Update(arb logic.Snapshot, r decoder.Reading, have bool) {
	t.mu.Lock()
	t.snap.Arbiter = arb
	t.snap.Reading = r
	t.snap.HaveReading = have
	t.mu.Unlock()
}

// CountDecode records the outcome of one received run. A nil err counts as
// a decoded frame.
func (t *Tracker) CountDecode(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &t.snap.Decode
	switch {
	case err == nil:
		c.Decoded++
	case errors.Is(err, decoder.ErrPayloadLength):
		c.Length++
	case errors.Is(err, decoder.ErrPulseRange):
		c.Pulse++
	case errors.Is(err, decoder.ErrSampleRange):
		c.Sample++
	case errors.Is(err, decoder.ErrChannelMismatch):
		c.Channel++
	case errors.Is(err, decoder.ErrTemperatureRange):
		c.Temperature++
	case errors.Is(err, gpio.ErrOverrun):
		c.Overrun++
	default:
		c.Other++
	}
}

// RecordPublish records the outcome of one reading publish.
func (t *Tracker) RecordPublish(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.snap.PublishFailed++
		t.snap.LastError = err.Error()
		return
	}
	t.snap.Published++
	t.snap.LastPublish = at
}

// RecordResync records the outcome of one clock sync.
func (t *Tracker) RecordResync(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.snap.ResyncFailed++
		t.snap.LastError = err.Error()
		return
	}
	t.snap.LastResync = at
}

// SetLinkUp sets the network link status.
func (t *Tracker) SetLinkUp(up bool) {
	t.mu.Lock()
	t.snap.LinkUp = up
	t.mu.Unlock()
}

// SetDroppedEdges sets the number of edge events the receiver dropped.
func (t *Tracker) SetDroppedEdges(n uint64) {
	t.mu.Lock()
	t.snap.DroppedEdges = n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the gateway state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
