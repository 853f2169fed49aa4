package decoder

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadLength    = errors.New("wrong payload length")
	ErrSampleRange      = errors.New("sample out of range")
	ErrPulseRange       = errors.New("carrier pulse out of range")
	ErrChannelMismatch  = errors.New("channel mismatch")
	ErrTemperatureRange = errors.New("temperature out of range")
)

// DecodeError reports why a frame was discarded. Err is one of the sentinel
// errors above; Value is the offending length, duration, channel or whole
// degrees. Sign is only set for ErrTemperatureRange.
type DecodeError struct {
	Err   error
	Value int
	Sign  int
}

func (e *DecodeError) Error() string {
	if e.Err == ErrTemperatureRange {
		return fmt.Sprintf("%v: %d", e.Err, e.Sign*e.Value)
	}
	return fmt.Sprintf("%v: %d", e.Err, e.Value)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
