package session

import "time"

// ReconnectConfig holds the pacing parameters for the driver loop.
type ReconnectConfig struct {
	InitialDelay     time.Duration // fixed delay between ticks
	MaxDelay         time.Duration
	Multiplier       float64
	FailureThreshold int // consecutive failures before backing off; 0 = never
}

// DefaultReconnectConfig returns sensible defaults for reconnection
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		InitialDelay:     1 * time.Second,
		MaxDelay:         60 * time.Second,
		Multiplier:       2.0,
		FailureThreshold: 5,
	}
}

// backoff tracks consecutive tick failures and derives the next delay.
type backoff struct {
	cfg      ReconnectConfig
	failures int
	delay    time.Duration
}

func newBackoff(cfg *ReconnectConfig) *backoff {
	if cfg == nil {
		cfg = DefaultReconnectConfig()
	}
	return &backoff{cfg: *cfg, delay: cfg.InitialDelay}
}

// next records the outcome of a tick and returns the wait before the next one.
func (b *backoff) next(tickErr error) time.Duration {
	if tickErr == nil {
		b.failures = 0
		b.delay = b.cfg.InitialDelay
		return b.delay
	}

	b.failures++
	if b.cfg.FailureThreshold <= 0 || b.failures <= b.cfg.FailureThreshold {
		return b.cfg.InitialDelay
	}

	// Exponential backoff
	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return b.delay
}

// backingOff reports whether the last delay exceeded the fixed pace.
func (b *backoff) backingOff() bool {
	return b.delay > b.cfg.InitialDelay
}
