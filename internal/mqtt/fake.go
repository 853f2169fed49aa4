package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

// PublishedReading is a reading recorded by FakePublisher.
type PublishedReading struct {
	Reading decoder.Reading
	At      time.Time
}

// FakePublisher records published readings and events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Readings contains all readings that were published.
	Readings []PublishedReading

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishReading.
	PublishError error

	// FailNext, if positive, makes that many PublishReading calls fail with
	// PublishError (or a generic error) before succeeding again.
	FailNext int

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Attempts counts PublishReading calls, successful or not.
	Attempts int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishReading records the reading.
func (f *FakePublisher) PublishReading(ctx context.Context, r decoder.Reading, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Attempts++
	if f.FailNext > 0 {
		f.FailNext--
		if f.PublishError != nil {
			return f.PublishError
		}
		return &Error{Op: OpConnect, Err: context.DeadlineExceeded}
	}
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(r, at)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, PublishedReading{Reading: r, At: at})
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(ctx context.Context, event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Published returns a copy of the recorded readings.
func (f *FakePublisher) Published() []PublishedReading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PublishedReading(nil), f.Readings...)
}

// Reset clears recorded readings and events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Readings = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.FailNext = 0
	f.Attempts = 0
}
