package timesync

import (
	"context"
	"errors"
	"sync"
)

// FakeTimeSource is a test double that returns scripted times.
type FakeTimeSource struct {
	mu sync.Mutex

	// Times contains the scripted epoch seconds. Each call consumes the next
	// one; the last is repeated once exhausted.
	Times []int64

	// Errs, if non-nil at the call's index, is returned instead of a time.
	Errs []error

	// Calls counts GetTime calls.
	Calls int
}

// GetTime returns the next scripted time.
func (f *FakeTimeSource) GetTime(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.Calls
	f.Calls++
	if i < len(f.Errs) && f.Errs[i] != nil {
		return 0, f.Errs[i]
	}
	if len(f.Times) == 0 {
		return 0, errors.New("no times configured")
	}
	if i >= len(f.Times) {
		i = len(f.Times) - 1
	}
	return f.Times[i], nil
}

// CallCount returns the number of GetTime calls so far.
func (f *FakeTimeSource) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
