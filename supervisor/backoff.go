package supervisor

import (
	"math/rand"
	"time"

	"github.com/opd-ai/courier/transport"
)

// BackoffConfig is the single reconnect delay policy shared by the
// supervisor. Delays grow as base*2^attempt up to Max; rate-limit drops
// are raised to RateLimitFloor so overloaded remotes are not hammered.
type BackoffConfig struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the exponential growth.
	Max time.Duration
	// RateLimitFloor is the minimum delay after a rate-limit drop.
	RateLimitFloor time.Duration
	// MaxAttempts is the total reconnect budget before the supervisor
	// gives up and requires a manual Start.
	MaxAttempts int
}

// DefaultBackoffConfig returns the standard policy: 1s base, 2m ceiling,
// 30s rate-limit floor, 30 attempts.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:           time.Second,
		Max:            2 * time.Minute,
		RateLimitFloor: 30 * time.Second,
		MaxAttempts:    30,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Base <= 0 {
		c.Base = time.Second
	}
	if c.Max <= 0 {
		c.Max = 2 * time.Minute
	}
	if c.Max < c.Base {
		c.Max = c.Base
	}
	if c.RateLimitFloor <= 0 {
		c.RateLimitFloor = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	return c
}

// Delay returns the deterministic delay for the given attempt (0-based)
// and disconnect reason: base*2^attempt clamped to Max, raised to the
// rate-limit floor when the remote signaled overload. The result is
// monotonically non-decreasing in attempt and never exceeds the effective
// ceiling.
func (c BackoffConfig) Delay(attempt int, reason transport.DisconnectReason) time.Duration {
	c = c.withDefaults()

	if attempt < 0 {
		attempt = 0
	}
	// 2^attempt saturates well past any realistic ceiling
	if attempt > 30 {
		attempt = 30
	}

	delay := c.Base << uint(attempt)
	if delay <= 0 || delay > c.Max {
		delay = c.Max
	}

	if reason.RateLimited() && delay < c.RateLimitFloor {
		delay = c.RateLimitFloor
	}

	return delay
}

// Jittered returns the scheduled delay for the given attempt: the
// deterministic Delay with subtractive jitter applied. Once the
// exponential curve reaches Max the delay holds steady there with no
// jitter, and rate-limit drops never fall below the floor.
func (c BackoffConfig) Jittered(attempt int, reason transport.DisconnectReason) time.Duration {
	c = c.withDefaults()

	d := c.Delay(attempt, reason)
	if d >= c.Max {
		return d
	}

	j := Jittered(d)
	if reason.RateLimited() && j < c.RateLimitFloor {
		j = c.RateLimitFloor
	}
	return j
}

// Jittered spreads a delay uniformly across [d/2, d]. Subtractive jitter
// keeps consecutive attempts non-decreasing (the minimum of attempt n+1
// equals the maximum of attempt n) and never exceeds the ceiling.
func Jittered(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
