package gpio

import (
	"context"
	"sync"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

// FakeSource is a test double that returns scripted pulse runs.
type FakeSource struct {
	mu sync.Mutex

	// Runs contains the scripted runs. Each call to Receive consumes the
	// next one. A nil run simulates a receive timeout.
	Runs [][]decoder.Symbol

	// index tracks current position in Runs
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReceiveError, if set, will be returned by Receive()
	ReceiveError error

	drained     chan struct{}
	drainedOnce sync.Once
}

// NewFakeSource creates a FakeSource with the given runs.
func NewFakeSource(runs ...[]decoder.Symbol) *FakeSource {
	return &FakeSource{Runs: runs, drained: make(chan struct{})}
}

// Receive returns the next scripted run. Once the script is exhausted,
// Drained is closed and Receive blocks until ctx is done.
func (f *FakeSource) Receive(ctx context.Context, buf []decoder.Symbol) (int, error) {
	f.mu.Lock()
	if f.ReceiveError != nil {
		err := f.ReceiveError
		f.mu.Unlock()
		return 0, err
	}
	if f.index >= len(f.Runs) {
		f.mu.Unlock()
		f.drainedOnce.Do(func() { close(f.drained) })
		<-ctx.Done()
		return 0, ctx.Err()
	}
	run := f.Runs[f.index]
	f.index++
	f.mu.Unlock()

	if run == nil {
		return 0, context.DeadlineExceeded
	}
	return fill(buf, run)
}

// Drained is closed once every scripted run has been delivered and
// Receive has been called again.
func (f *FakeSource) Drained() <-chan struct{} {
	return f.drained
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds the source to the first run. Drained is not rearmed.
func (f *FakeSource) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}
