//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
	"github.com/warthog618/go-gpiocdev"
)

// RealSource captures pulse runs from a GPIO line using edge events from the
// Linux GPIO character device. Kernel timestamps are used for durations, so
// scheduling latency does not distort pulse widths.
type RealSource struct {
	line    *gpiocdev.Line
	events  chan Edge
	pending *Edge
	dropped atomic.Uint64
}

// NewRealSource requests offset on chip (e.g. "gpiochip0") as an input with
// edge detection on both edges.
func NewRealSource(chip string, offset int) (*RealSource, error) {
	s := &RealSource{events: make(chan Edge, 16*BufferSize)}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(GlitchFilter),
		gpiocdev.WithEventHandler(s.handle),
	)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	s.line = line
	return s, nil
}

func (s *RealSource) handle(evt gpiocdev.LineEvent) {
	e := Edge{Level: decoder.Low, At: evt.Timestamp}
	if evt.Type == gpiocdev.LineEventRisingEdge {
		e.Level = decoder.High
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of edges lost to a full event queue.
func (s *RealSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Receive waits for the next run. A run ends when no edge follows the last
// one within IdleThreshold, measured on kernel timestamps so that queued
// edges are split correctly.
func (s *RealSource) Receive(ctx context.Context, buf []decoder.Symbol) (int, error) {
	var edges []Edge
	if s.pending != nil {
		edges = append(edges, *s.pending)
		s.pending = nil
	} else {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case e := <-s.events:
			edges = append(edges, e)
		}
	}

	for {
		last := edges[len(edges)-1]
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case e := <-s.events:
			if e.At-last.At >= IdleThreshold {
				s.pending = &e
				return fill(buf, Assemble(edges, last.At+IdleThreshold))
			}
			edges = append(edges, e)
		case <-time.After(IdleThreshold):
			return fill(buf, Assemble(edges, last.At+IdleThreshold))
		}
	}
}

// Close releases the GPIO line. The line is left as an input with pull-down,
// matching the Raspberry Pi boot defaults.
func (s *RealSource) Close() error {
	if s.line == nil {
		return nil
	}
	var errs []error
	if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	return errors.Join(errs...)
}
