//go:build !linux

package gpio

import (
	"context"
	"errors"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns an error on non-Linux platforms.
func NewRealSource(chip string, offset int) (*RealSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Receive is not implemented on non-Linux platforms.
func (s *RealSource) Receive(ctx context.Context, buf []decoder.Symbol) (int, error) {
	return 0, errors.New("gpio: not supported")
}

// Dropped always returns 0 on non-Linux platforms.
func (s *RealSource) Dropped() uint64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
