// Package watchdog keeps the process honest: the control loop feeds it every
// iteration, and a loop that stops feeding is killed and restarted by the
// supervisor.
package watchdog

import (
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Feeder is fed by the control loop.
type Feeder interface {
	Feed()
}

// DefaultTimeout is the in-process watchdog timeout.
const DefaultTimeout = 30 * time.Second

// Timer is an in-process watchdog. If it is not fed within its timeout,
// onExpire runs on its own goroutine.
type Timer struct {
	timeout time.Duration
	timer   *time.Timer

	mu       sync.Mutex
	lastFeed time.Time
}

// NewTimer starts a watchdog that calls onExpire after timeout without a
// Feed.
func NewTimer(timeout time.Duration, onExpire func()) *Timer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Timer{
		timeout:  timeout,
		timer:    time.AfterFunc(timeout, onExpire),
		lastFeed: time.Now(),
	}
}

// Feed restarts the countdown.
func (t *Timer) Feed() {
	t.timer.Reset(t.timeout)
	t.mu.Lock()
	t.lastFeed = time.Now()
	t.mu.Unlock()
}

// LastFeed returns when the watchdog was last fed.
func (t *Timer) LastFeed() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFeed
}

// Stop disarms the watchdog.
func (t *Timer) Stop() {
	t.timer.Stop()
}

// Systemd notifies the service manager. Feed sends WATCHDOG=1 when the unit
// has WatchdogSec set, at most every half interval.
type Systemd struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewSystemd reads the watchdog interval from the environment. Outside
// systemd every method is a no-op.
func NewSystemd() (*Systemd, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return nil, err
	}
	return &Systemd{interval: interval, now: time.Now}, nil
}

// Enabled reports whether systemd expects watchdog pings.
func (s *Systemd) Enabled() bool {
	return s.interval > 0
}

// Interval returns the systemd watchdog interval, or 0.
func (s *Systemd) Interval() time.Duration {
	return s.interval
}

// Feed pings the systemd watchdog.
func (s *Systemd) Feed() {
	if s.interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval/2 {
		return
	}
	s.last = now
	daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}

// Ready tells systemd that startup is complete.
func (s *Systemd) Ready() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return err
}

// Stopping tells systemd that shutdown has begun.
func (s *Systemd) Stopping() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// Multi feeds every feeder in order.
type Multi []Feeder

// Feed feeds all.
func (m Multi) Feed() {
	for _, f := range m {
		f.Feed()
	}
}
