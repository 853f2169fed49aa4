package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/ook-gateway/internal/clock"
	"github.com/sweeney/ook-gateway/internal/config"
	"github.com/sweeney/ook-gateway/internal/decoder"
	"github.com/sweeney/ook-gateway/internal/gpio"
	"github.com/sweeney/ook-gateway/internal/logic"
	"github.com/sweeney/ook-gateway/internal/mqtt"
	"github.com/sweeney/ook-gateway/internal/status"
	"github.com/sweeney/ook-gateway/internal/timesync"
	"github.com/sweeney/ook-gateway/internal/watchdog"
)

// gateway is the control loop. It is the only owner of the arbiter.
type gateway struct {
	source  gpio.Source
	pub     mqtt.Publisher
	times   timesync.TimeSource // nil disables resync
	clock   *clock.Clock
	arbiter *logic.Arbiter
	dog     watchdog.Feeder
	tracker *status.Tracker
	cfg     *config.Config

	// now is the monotonic clock the arbiter runs on.
	now func() time.Time
}

// dropper is implemented by sources that can lose edges.
type dropper interface {
	Dropped() uint64
}

// runLoop receives, decodes and publishes until ctx is cancelled, then
// publishes SHUTDOWN and returns nil. It returns a *logic.FatalError when the
// liveness ceiling is exceeded.
func (g *gateway) runLoop(ctx context.Context) error {
	buf := make([]decoder.Symbol, gpio.BufferSize)

	for {
		g.dog.Feed()
		if ctx.Err() != nil {
			g.shutdown(ctx)
			return nil
		}

		now := g.now()
		if g.times != nil && g.arbiter.ResyncDue(now) {
			g.resync(ctx, now)
		}
		if err := g.arbiter.CheckLiveness(now); err != nil {
			return err
		}

		rctx, cancel := context.WithTimeout(ctx, g.cfg.ReceiveTimeout)
		n, err := g.source.Receive(rctx, buf)
		cancel()
		g.dog.Feed()

		if d, ok := g.source.(dropper); ok {
			g.tracker.SetDroppedEdges(d.Dropped())
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			g.tracker.CountDecode(err)
			slog.Debug("receive failed", "err", err)
			continue
		}

		g.handleRun(ctx, buf[:n], now)
	}
}

// handleRun decodes one pulse run and publishes the reading once it is stable.
func (g *gateway) handleRun(ctx context.Context, run []decoder.Symbol, now time.Time) {
	r, err := decoder.Decode(run, uint8(g.cfg.Channel))
	g.tracker.CountDecode(err)
	if err != nil {
		switch {
		case errors.Is(err, decoder.ErrPayloadLength):
			// Noise and other transmitters; too common to log.
		case errors.Is(err, decoder.ErrChannelMismatch):
			slog.Debug("frame for another channel", "err", err)
		default:
			slog.Warn("discarding frame", "err", err)
		}
		return
	}
	slog.Debug("decoded", "reading", r)

	out, ok := g.arbiter.Observe(r, now)
	g.tracker.Update(g.arbiter.Snapshot(), r, true)
	if !ok {
		return
	}

	at := g.clock.Now()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.PublishTimeout)
	err = g.pub.PublishReading(pctx, out, at)
	cancel()
	g.tracker.RecordPublish(at, err)
	if err != nil {
		g.arbiter.PublishFailed()
		slog.Warn("publish failed", "err", err, "reading", out)
		return
	}
	g.arbiter.Published(now)
	g.tracker.Update(g.arbiter.Snapshot(), r, true)
	slog.Info("published", "reading", out)
}

// resync rebases the wall clock from the time source.
func (g *gateway) resync(ctx context.Context, now time.Time) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.NTPTimeout)
	epoch, err := g.times.GetTime(sctx)
	cancel()
	if err != nil {
		g.arbiter.ResyncFailed(now)
		g.tracker.RecordResync(time.Time{}, err)
		slog.Warn("clock resync failed", "err", err)
		return
	}
	step := g.clock.Rebase(epoch)
	g.arbiter.Resynced(now)
	g.tracker.RecordResync(g.clock.Now(), nil)
	slog.Info("clock resynced", "time", g.clock.Now(), "step", step)
}

func (g *gateway) shutdown(ctx context.Context) {
	reason := signalName(context.Cause(ctx))
	slog.Info("shutting down", "reason", reason)
	g.publishSystem(ctx, "SHUTDOWN", reason)
}

// publishSystem publishes a retained lifecycle event carrying a status
// snapshot. Failures are logged, never returned.
func (g *gateway) publishSystem(ctx context.Context, event, reason string) {
	snap := g.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  g.clock.Now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.PublishTimeout)
	defer cancel()
	if err := g.pub.PublishSystem(pctx, ev); err != nil {
		slog.Warn("failed to publish system event", "event", event, "err", err)
		return
	}
	slog.Info("published system event", "event", event)
}
