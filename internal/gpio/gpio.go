// Package gpio captures OOK pulse runs from a 433 MHz receiver wired to a GPIO
// line. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

// Source delivers one pulse run per call.
type Source interface {
	// Receive blocks until a run ends (the line stays idle for IdleThreshold)
	// or ctx is done. It writes the run into buf and returns the number of
	// symbols written. On timeout it returns ctx.Err().
	Receive(ctx context.Context, buf []decoder.Symbol) (int, error)

	// Close releases GPIO resources.
	Close() error
}

// Receiver timing.
const (
	// IdleThreshold ends a run once the line has been quiet this long.
	IdleThreshold = 3 * time.Millisecond
	// GlitchFilter drops pulses shorter than this.
	GlitchFilter = 100 * time.Microsecond
	// BufferSize is the receive buffer length in symbols.
	BufferSize = 64
)

// ErrOverrun is returned when a run has more symbols than the buffer holds.
// The first len(buf) symbols are still written.
var ErrOverrun = errors.New("gpio: pulse run exceeds buffer")

// Edge is a level change on the input line. At is a monotonic timestamp.
type Edge struct {
	Level decoder.Level // level after the edge
	At    time.Duration
}

// Assemble converts the edges of one run, which ended at end, into symbols.
// Each symbol pairs a carrier pulse with the gap that follows it. The gap
// after the last pulse is the idle that ended the run and is recorded as a
// zero-length low segment. Edges before the first rising edge, and repeated
// levels, are ignored. Durations saturate at the largest uint16 microsecond
// count.
func Assemble(edges []Edge, end time.Duration) []decoder.Symbol {
	var segs []decoder.Segment
	var cur *Edge
	for i := range edges {
		e := edges[i]
		if cur == nil {
			if e.Level == decoder.High {
				cur = &edges[i]
			}
			continue
		}
		if e.Level == cur.Level {
			continue
		}
		segs = append(segs, decoder.Segment{Level: cur.Level, Duration: micros(e.At - cur.At)})
		cur = &edges[i]
	}
	if cur == nil {
		return nil
	}
	// Line still high at the end of the run: the pulse lasted until end.
	if cur.Level == decoder.High {
		segs = append(segs, decoder.Segment{Level: decoder.High, Duration: micros(end - cur.At)})
	}

	run := make([]decoder.Symbol, 0, (len(segs)+1)/2)
	for i := 0; i < len(segs); i += 2 {
		s := decoder.Symbol{First: segs[i], Second: decoder.Segment{Level: decoder.Low}}
		if i+1 < len(segs) {
			s.Second = segs[i+1]
		}
		run = append(run, s)
	}
	return run
}

// fill copies run into buf.
func fill(buf []decoder.Symbol, run []decoder.Symbol) (int, error) {
	n := copy(buf, run)
	if n < len(run) {
		return n, ErrOverrun
	}
	return n, nil
}

func micros(d time.Duration) uint16 {
	us := d.Microseconds()
	if us < 0 {
		return 0
	}
	if us > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(us)
}
