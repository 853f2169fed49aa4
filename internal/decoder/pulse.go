// Package decoder turns the pulse timings of a Nexus-TH temperature/humidity
// transmitter into readings. It has no hardware or network dependencies;
// pulse runs are supplied by internal/gpio.
package decoder

// Level is the carrier state of one segment of a symbol.
type Level uint8

const (
	Low  Level = iota // carrier absent
	High              // carrier present
)

// String returns "HIGH" or "LOW".
func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Segment is one level held for a duration in microseconds.
type Segment struct {
	Level    Level
	Duration uint16
}

// Symbol is one symbol slot as delivered by the receive peripheral: a pair of
// segments. For Nexus-TH the first is the carrier pulse and the second the gap
// that encodes the bit. The terminator has a zero-length second segment.
type Symbol struct {
	First  Segment
	Second Segment
}

// gap returns the duration of the carrier-absent segment, which carries the
// bit value.
func (s Symbol) gap() uint16 {
	if s.First.Level == Low {
		return s.First.Duration
	}
	return s.Second.Duration
}

// Window is a half-open duration range [Min, Max) in microseconds.
type Window struct {
	Min uint16
	Max uint16
}

// Contains reports whether d lies in the window.
func (w Window) Contains(d uint16) bool {
	return d >= w.Min && d < w.Max
}

// Timing is the timing table of one wire format.
type Timing struct {
	// Carrier bounds every carrier-present segment, whatever bit it encodes.
	Carrier Window
	// One and Zero bound the gap encoding a logical 1 and 0.
	One  Window
	Zero Window
}

// NexusTiming is the Nexus-TH timing table. The carrier pulse width drifts
// with battery voltage, hence the wide carrier window.
var NexusTiming = Timing{
	Carrier: Window{Min: 300, Max: 650},
	One:     Window{Min: 1650, Max: 2150},
	Zero:    Window{Min: 800, Max: 1100},
}

// Classify maps a gap duration to a bit. Durations outside both windows fail
// with ErrSampleRange; there is no rounding toward the nearer window.
func (t Timing) Classify(d uint16) (uint32, error) {
	switch {
	case t.One.Contains(d):
		return 1, nil
	case t.Zero.Contains(d):
		return 0, nil
	}
	return 0, &DecodeError{Err: ErrSampleRange, Value: int(d)}
}
