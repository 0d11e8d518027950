package session

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultReconnectConfig(t *testing.T) {
	cfg := DefaultReconnectConfig()

	if cfg.InitialDelay != time.Second {
		t.Errorf("expected InitialDelay 1s, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("expected MaxDelay 60s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier 2.0, got %v", cfg.Multiplier)
	}
	if cfg.FailureThreshold != 5 {
		t.Errorf("expected FailureThreshold 5, got %d", cfg.FailureThreshold)
	}
}

func TestBackoff_FixedPaceUntilThreshold(t *testing.T) {
	b := newBackoff(&ReconnectConfig{
		InitialDelay:     time.Second,
		MaxDelay:         10 * time.Second,
		Multiplier:       2,
		FailureThreshold: 3,
	})
	fail := errors.New("boom")

	want := []time.Duration{
		time.Second, time.Second, time.Second, // up to the threshold
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		10 * time.Second, 10 * time.Second, // capped
	}
	for i, w := range want {
		if got := b.next(fail); got != w {
			t.Errorf("failure %d: delay = %v, want %v", i+1, got, w)
		}
	}
	if !b.backingOff() {
		t.Error("expected backingOff after threshold")
	}

	if got := b.next(nil); got != time.Second {
		t.Errorf("success delay = %v, want 1s", got)
	}
	if b.failures != 0 || b.backingOff() {
		t.Errorf("success should reset: failures=%d", b.failures)
	}
}

func TestBackoff_ZeroThresholdNeverBacksOff(t *testing.T) {
	b := newBackoff(&ReconnectConfig{InitialDelay: 500 * time.Millisecond, MaxDelay: time.Minute, Multiplier: 2})
	for i := 0; i < 20; i++ {
		if got := b.next(errors.New("x")); got != 500*time.Millisecond {
			t.Fatalf("failure %d: delay = %v", i, got)
		}
	}
	if b.backingOff() {
		t.Error("zero threshold must not back off")
	}
}

func TestBackoff_NilConfigUsesDefaults(t *testing.T) {
	b := newBackoff(nil)
	if got := b.next(nil); got != time.Second {
		t.Errorf("delay = %v", got)
	}
}
