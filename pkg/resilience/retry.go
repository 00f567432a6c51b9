// Package resilience provides retry with backoff, cached fallback, a circuit
// breaker and an error reporter for the price feeds.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures Retry.
type RetryConfig struct {
	// MaxAttempts counts the first call.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Multiplier is the exponential growth factor between attempts.
	Multiplier float64
	// Jitter is the random spread applied to each delay, 0.1 means ±10%.
	Jitter float64

	// RetryCondition decides whether err is worth another attempt.
	RetryCondition func(err error) bool
	// Sleep waits d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a number in [0, 1) used for jitter.
	Rand func() float64
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns 3 attempts with exponential backoff from one
// second, ±10% jitter, capped at ten seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2,
		Jitter:         0.1,
		RetryCondition: IsRetryable,
		Sleep:          SleepContext,
		Rand:           rand.Float64,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.RetryCondition == nil {
		c.RetryCondition = d.RetryCondition
	}
	if c.Sleep == nil {
		c.Sleep = d.Sleep
	}
	if c.Rand == nil {
		c.Rand = d.Rand
	}
	return c
}

// Backoff returns the wait after the given failed attempt (1-based).
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	cfg = cfg.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (cfg.Rand()*2 - 1)
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// SleepContext waits d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry runs op until it succeeds, the retry condition rejects the error or
// attempts run out. The final failure is returned as a *domain.Error that
// keeps the last cause.
func Retry[T any](ctx context.Context, op func(context.Context) (T, error), cfg RetryConfig) (T, error) {
	cfg = cfg.withDefaults()
	var zero T
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attempts = attempt
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts || !cfg.RetryCondition(err) {
			break
		}

		delay := Backoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if serr := cfg.Sleep(ctx, delay); serr != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, serr)
			break
		}
	}

	return zero, Enhance(lastErr,
		fmt.Sprintf("operation failed after %d attempt(s)", attempts),
		map[string]any{"attempts": attempts})
}
