package timesync

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/beevik/ntp"
)

const ntpEpochOffset = 2208988800

func putTime(b []byte, t time.Time) {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	binary.BigEndian.PutUint64(b, secs<<32|frac)
}

// startServer runs a minimal NTP server on loopback that always reports now.
func startServer(t *testing.T, now time.Time) (port int) {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		req := make([]byte, 48)
		for {
			n, from, err := conn.ReadFrom(req)
			if err != nil {
				return
			}
			if n < 48 {
				continue
			}
			resp := make([]byte, 48)
			resp[0] = 0x24 // LI 0, version 4, mode server
			resp[1] = 1    // stratum
			resp[2] = 4    // poll
			resp[3] = 0xec // precision
			copy(resp[12:16], "GPS\x00")
			putTime(resp[16:24], now.Add(-time.Second))
			copy(resp[24:32], req[40:48])
			putTime(resp[32:40], now)
			putTime(resp[40:48], now)
			conn.WriteTo(resp, from)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

var serverTime = time.Date(2026, 1, 1, 0, 0, 0, 500_000_000, time.UTC)

func TestGetTime(t *testing.T) {
	port := startServer(t, serverTime)

	c, err := NewClient("127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != serverTime.Unix() {
		t.Errorf("got %d, want %d", got, serverTime.Unix())
	}
}

func TestGetTimeCachesResolvedAddress(t *testing.T) {
	port := startServer(t, serverTime)

	c, err := NewClient("ntp.test:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lookups := 0
	c.lookupHost = func(ctx context.Context, host string) ([]string, error) {
		lookups++
		if host != "ntp.test" {
			t.Errorf("lookup host: got %q, want ntp.test", host)
		}
		return []string{"127.0.0.1"}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := c.GetTime(context.Background()); err != nil {
			t.Fatalf("query %d: unexpected error: %v", i, err)
		}
	}
	if lookups != 1 {
		t.Errorf("lookups: got %d, want 1", lookups)
	}
	if c.Cached() != "127.0.0.1" {
		t.Errorf("cached: got %q", c.Cached())
	}
}

func TestGetTimeFailureClearsCache(t *testing.T) {
	c, err := NewClient("ntp.test", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.lookupHost = func(ctx context.Context, host string) ([]string, error) {
		return []string{"192.0.2.1"}, nil
	}
	c.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		if host != "192.0.2.1:123" {
			t.Errorf("query host: got %q", host)
		}
		return nil, errors.New("refused")
	}

	_, err = c.GetTime(context.Background())
	var te *Error
	if !errors.As(err, &te) || te.Op != OpQuery {
		t.Fatalf("expected query error, got %v", err)
	}
	if c.Cached() != "" {
		t.Errorf("cache should be cleared after failure, got %q", c.Cached())
	}
}

func TestGetTimeTimeout(t *testing.T) {
	c, err := NewClient("192.0.2.1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release := make(chan struct{})
	defer close(release)
	c.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		<-release
		return nil, errors.New("late")
	}

	_, err = c.GetTime(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	var te *Error
	if errors.As(err, &te) && te.Op != OpTimeout {
		t.Errorf("op: got %s, want %s", te.Op, OpTimeout)
	}
	if c.Cached() != "" {
		t.Error("cache should be cleared after timeout")
	}
}

func TestGetTimeContextCanceled(t *testing.T) {
	c, err := NewClient("192.0.2.1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release := make(chan struct{})
	defer close(release)
	c.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		<-release
		return nil, errors.New("late")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetTime(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGetTimeResolveError(t *testing.T) {
	c, _ := NewClient("ntp.test", time.Second)
	c.lookupHost = func(ctx context.Context, host string) ([]string, error) {
		return nil, errors.New("nxdomain")
	}
	_, err := c.GetTime(context.Background())
	var te *Error
	if !errors.As(err, &te) || te.Op != OpResolve {
		t.Errorf("expected resolve error, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", 0); err == nil {
		t.Error("expected error for empty server")
	}
	if _, err := NewClient("pool.ntp.org:0", 0); err == nil {
		t.Error("expected error for port 0")
	}
	c, err := NewClient("pool.ntp.org", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.port != 123 || c.timeout != DefaultTimeout {
		t.Errorf("defaults: got port=%d timeout=%v", c.port, c.timeout)
	}
}

func TestFakeTimeSource(t *testing.T) {
	f := &FakeTimeSource{
		Times: []int64{100, 200},
		Errs:  []error{nil, errors.New("down")},
	}
	ctx := context.Background()

	if got, err := f.GetTime(ctx); err != nil || got != 100 {
		t.Errorf("call 0: got (%d, %v)", got, err)
	}
	if _, err := f.GetTime(ctx); err == nil {
		t.Error("call 1: expected error")
	}
	if got, _ := f.GetTime(ctx); got != 200 {
		t.Errorf("call 2: got %d, want 200 (last repeated)", got)
	}
	if f.CallCount() != 3 {
		t.Errorf("calls: got %d, want 3", f.CallCount())
	}
}
