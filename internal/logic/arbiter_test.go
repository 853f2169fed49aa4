package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/ook-gateway/internal/decoder"
)

var boot = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func reading(temp10, hum int) decoder.Reading {
	sign := 1
	if temp10 < 0 {
		sign, temp10 = -1, -temp10
	}
	return decoder.Reading{
		Model:      decoder.ModelNexusTH,
		Sign:       sign,
		TempWhole:  temp10 / 10,
		TempTenths: temp10 % 10,
		Humidity:   hum,
		BatteryOK:  true,
		Channel:    1,
		ID:         42,
	}
}

// observeAt feeds r at boot+offset and returns whether it should publish.
func observeAt(a *Arbiter, r decoder.Reading, offset time.Duration) bool {
	_, ok := a.Observe(r, boot.Add(offset))
	return ok
}

func TestNewArbiter(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	if a.State() != StateUnset {
		t.Errorf("state: got %s, want %s", a.State(), StateUnset)
	}
	if _, ok := a.Current(); ok {
		t.Error("new arbiter should have no reading")
	}
	snap := a.Snapshot()
	if !snap.LastPublish.Equal(boot) || !snap.LastResync.Equal(boot) {
		t.Errorf("deadlines should start at boot, got %+v", snap)
	}
}

func TestPublishOnThirdEqualReading(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	r := reading(215, 48)

	if observeAt(a, r, 10*time.Second) {
		t.Fatal("first reading should not publish")
	}
	if a.State() != StateTracking {
		t.Errorf("state: got %s, want %s", a.State(), StateTracking)
	}
	if observeAt(a, r, 11*time.Second) {
		t.Fatal("second reading should not publish")
	}

	got, ok := a.Observe(r, boot.Add(12*time.Second))
	if !ok {
		t.Fatal("third equal reading should publish")
	}
	if got != r {
		t.Errorf("published reading: got %+v, want %+v", got, r)
	}
	if a.State() != StatePending {
		t.Errorf("state before ack: got %s, want %s", a.State(), StatePending)
	}

	a.Published(boot.Add(12 * time.Second))
	if a.State() != StatePublished {
		t.Errorf("state: got %s, want %s", a.State(), StatePublished)
	}

	// Fourth equal reading: latched.
	if observeAt(a, r, 30*time.Second) {
		t.Error("fourth equal reading should not publish again")
	}

	// A different fifth reading restarts the count.
	if observeAt(a, reading(216, 48), 31*time.Second) {
		t.Error("changed reading should not publish")
	}
	if snap := a.Snapshot(); snap.Count != 1 || snap.State != StateTracking {
		t.Errorf("after change: got count=%d state=%s, want 1 %s", snap.Count, snap.State, StateTracking)
	}
}

func TestPublishCarriesLatestIdentity(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	r := reading(100, 40)
	observeAt(a, r, 10*time.Second)
	observeAt(a, r, 11*time.Second)

	r.ID, r.BatteryOK = 7, false
	got, ok := a.Observe(r, boot.Add(12*time.Second))
	if !ok {
		t.Fatal("expected publish")
	}
	if got.ID != 7 || got.BatteryOK {
		t.Errorf("should publish latest frame's identity, got id=%d battery=%v", got.ID, got.BatteryOK)
	}
}

func TestAlternatingReadingsNeverPublish(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	for i := 0; i < 20; i++ {
		r := reading(200, 50)
		if i%2 == 1 {
			r = reading(200, 51)
		}
		if observeAt(a, r, time.Duration(10+i)*time.Second) {
			t.Fatalf("frame %d: alternating readings should never publish", i)
		}
	}
}

func TestMinIntervalGate(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	r1 := reading(200, 50)
	for i := 0; i < 3; i++ {
		observeAt(a, r1, 10*time.Second)
	}
	a.Published(boot.Add(10 * time.Second))

	// A new stable reading 3s later is held back by the interval.
	r2 := reading(201, 50)
	observeAt(a, r2, 11*time.Second)
	observeAt(a, r2, 12*time.Second)
	if observeAt(a, r2, 13*time.Second) {
		t.Fatal("publish within the minimum interval")
	}
	if a.State() != StatePending {
		t.Errorf("state: got %s, want %s", a.State(), StatePending)
	}

	// Exactly at the interval boundary it goes out.
	if !observeAt(a, r2, 15*time.Second) {
		t.Error("publish should be allowed at exactly the minimum interval")
	}
}

func TestMinIntervalFromBoot(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	r := reading(200, 50)
	observeAt(a, r, 1*time.Second)
	observeAt(a, r, 2*time.Second)
	if observeAt(a, r, 3*time.Second) {
		t.Error("publish within the minimum interval of boot")
	}
	if !observeAt(a, r, 5*time.Second) {
		t.Error("publish should be allowed 5s after boot")
	}
}

func TestFailedPublishRetriesOnNextFrame(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	r := reading(123, 45)
	observeAt(a, r, 10*time.Second)
	observeAt(a, r, 11*time.Second)
	if !observeAt(a, r, 12*time.Second) {
		t.Fatal("expected publish")
	}
	a.PublishFailed()

	if a.State() != StatePending {
		t.Errorf("state after failure: got %s, want %s", a.State(), StatePending)
	}
	if !a.Snapshot().LastPublish.Equal(boot) {
		t.Error("failed publish must not move the last publish time")
	}
	if !observeAt(a, r, 13*time.Second) {
		t.Error("next equal frame should retry the publish")
	}
	a.Published(boot.Add(13 * time.Second))
	if observeAt(a, r, 14*time.Second) {
		t.Error("no more publishes after success")
	}
}

func TestCountSaturates(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	r := reading(50, 60)
	for i := 0; i < 100; i++ {
		observeAt(a, r, time.Duration(i)*time.Millisecond)
	}
	if got := a.Snapshot().Count; got != 3 {
		t.Errorf("count: got %d, want 3", got)
	}
}

func TestThresholdOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0
	a := NewArbiter(cfg, boot)
	if !observeAt(a, reading(10, 10), 10*time.Second) {
		t.Error("threshold below 1 should behave as 1")
	}
}

func TestLiveness(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)

	if err := a.CheckLiveness(boot.Add(360 * time.Second)); err != nil {
		t.Errorf("at exactly the ceiling: unexpected error %v", err)
	}

	err := a.CheckLiveness(boot.Add(361 * time.Second))
	if err == nil {
		t.Fatal("expected liveness failure")
	}
	if !IsFatal(err) {
		t.Errorf("expected *FatalError, got %T", err)
	}
	if !errors.Is(err, ErrLivenessExceeded) {
		t.Errorf("expected ErrLivenessExceeded, got %v", err)
	}
}

func TestLivenessResetByPublish(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)
	a.Published(boot.Add(300 * time.Second))
	if err := a.CheckLiveness(boot.Add(600 * time.Second)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	a.PublishFailed()
	if err := a.CheckLiveness(boot.Add(661 * time.Second)); err == nil {
		t.Error("failures should not extend liveness")
	}
}

func TestLivenessDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ceiling = 0
	a := NewArbiter(cfg, boot)
	if err := a.CheckLiveness(boot.Add(24 * time.Hour)); err != nil {
		t.Errorf("disabled ceiling: unexpected error %v", err)
	}
}

func TestResyncSchedule(t *testing.T) {
	a := NewArbiter(DefaultConfig(), boot)

	if a.ResyncDue(boot.Add(9999 * time.Second)) {
		t.Error("resync due too early")
	}
	due := boot.Add(10000 * time.Second)
	if !a.ResyncDue(due) {
		t.Fatal("resync should be due at the interval")
	}

	a.ResyncFailed(due)
	if a.ResyncDue(due.Add(59 * time.Second)) {
		t.Error("retry should wait for the retry interval")
	}
	if !a.ResyncDue(due.Add(60 * time.Second)) {
		t.Error("retry should be due after the retry interval")
	}

	a.Resynced(due.Add(60 * time.Second))
	if a.ResyncDue(due.Add(61 * time.Second)) {
		t.Error("resync should not be due right after success")
	}
	if got := a.Snapshot().LastResync; !got.Equal(due.Add(60 * time.Second)) {
		t.Errorf("last resync: got %v", got)
	}
}

func TestResyncDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResyncInterval = 0
	a := NewArbiter(cfg, boot)
	if a.ResyncDue(boot.Add(100000 * time.Second)) {
		t.Error("disabled resync should never be due")
	}
}

func TestFatalErrorFormat(t *testing.T) {
	err := &FatalError{Reason: "link down"}
	if err.Error() != "fatal: link down" {
		t.Errorf("got %q", err.Error())
	}
	wrapped := &FatalError{Reason: "ntp", Err: errors.New("timeout")}
	if wrapped.Error() != "fatal: ntp: timeout" {
		t.Errorf("got %q", wrapped.Error())
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain error should not be fatal")
	}
}
