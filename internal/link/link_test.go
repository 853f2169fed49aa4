package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMarkUp(t *testing.T) {
	l := New()
	if l.IsUp() {
		t.Error("new link should not be up")
	}

	l.MarkUp()
	l.MarkUp() // second call must not panic

	if !l.IsUp() {
		t.Error("link should be up after MarkUp")
	}
	select {
	case <-l.Up():
	default:
		t.Error("Up channel should be closed")
	}
}

func TestWaitUp(t *testing.T) {
	l := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.WaitUp(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.MarkUp()
	}()
	if err := l.WaitUp(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDoSerializes(t *testing.T) {
	l := New()
	var inFlight, maxInFlight atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Do(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max in flight: got %d, want 1", got)
	}
}

func TestDoReleasesSlotOnError(t *testing.T) {
	l := New()
	boom := errors.New("boom")
	if err := l.Do(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := l.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("slot should be free again: %v", err)
	}
}

func TestDoHonoursContextWhileWaiting(t *testing.T) {
	l := New()
	hold := make(chan struct{})
	started := make(chan struct{})
	go l.Do(context.Background(), func(context.Context) error {
		close(started)
		<-hold
		return nil
	})
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := l.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if called {
		t.Error("fn should not run without the slot")
	}
}

func TestWatch(t *testing.T) {
	l := New()
	var calls atomic.Int32
	l.LookupHost = func(ctx context.Context, host string) ([]string, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("no route")
		}
		return []string{"10.0.0.5"}, nil
	}

	if err := l.Watch(context.Background(), "broker.lan", time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.IsUp() {
		t.Error("link should be up")
	}
	if calls.Load() != 3 {
		t.Errorf("lookups: got %d, want 3", calls.Load())
	}
}

func TestWatchIPLiteral(t *testing.T) {
	l := New()
	l.LookupHost = func(ctx context.Context, host string) ([]string, error) {
		t.Fatal("lookup should not be called for an IP literal")
		return nil, nil
	}
	if err := l.Watch(context.Background(), "192.168.1.200", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.IsUp() {
		t.Error("link should be up")
	}
}

func TestWatchTimeout(t *testing.T) {
	l := New()
	l.LookupHost = func(ctx context.Context, host string) ([]string, error) {
		return nil, errors.New("no route")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Watch(ctx, "broker.lan", time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if l.IsUp() {
		t.Error("link should not be up")
	}
}
