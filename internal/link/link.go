// Package link tracks network availability and serializes network use.
package link

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultPollInterval is how often Watch retries resolution.
const DefaultPollInterval = 500 * time.Millisecond

// Link is the gateway's single network slot. Up is a one-shot signal: once
// the network has been seen up it stays up for the process lifetime, and
// later failures surface as operation errors instead.
type Link struct {
	up     chan struct{}
	upOnce sync.Once
	slot   chan struct{}

	// LookupHost resolves names for Watch. Defaults to net.DefaultResolver.
	LookupHost func(ctx context.Context, host string) ([]string, error)
}

// New creates a link that is not yet up.
func New() *Link {
	return &Link{
		up:         make(chan struct{}),
		slot:       make(chan struct{}, 1),
		LookupHost: net.DefaultResolver.LookupHost,
	}
}

// MarkUp signals that the network is usable. Safe to call more than once.
func (l *Link) MarkUp() {
	l.upOnce.Do(func() { close(l.up) })
}

// Up returns a channel that is closed once the link is up.
func (l *Link) Up() <-chan struct{} {
	return l.up
}

// IsUp reports whether the link has come up.
func (l *Link) IsUp() bool {
	select {
	case <-l.up:
		return true
	default:
		return false
	}
}

// WaitUp blocks until the link is up or ctx is done.
func (l *Link) WaitUp(ctx context.Context) error {
	select {
	case <-l.up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn while holding the network slot, so at most one network
// operation is in flight. Waiting for the slot honours ctx.
func (l *Link) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()
	return fn(ctx)
}

// Watch resolves host every interval until it succeeds, then marks the link
// up and returns. It returns ctx.Err() if ctx ends first.
func (l *Link) Watch(ctx context.Context, host string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if net.ParseIP(host) != nil {
		l.MarkUp()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		addrs, err := l.LookupHost(ctx, host)
		if err == nil && len(addrs) > 0 {
			slog.Info("link up", "host", host, "addr", addrs[0])
			l.MarkUp()
			return nil
		}
		slog.Debug("waiting for link", "host", host, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
