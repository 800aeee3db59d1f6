// Package retry provides backoff retry logic for external API and collaborator calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// Exponential doubles the delay after every attempt.
	Exponential Backoff = iota
	// Linear grows the delay by BaseDelay after every attempt.
	Linear
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	Backoff     Backoff

	// Retryable decides whether an error is worth another attempt.
	// Defaults to perrors.IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// LinearConfig returns a config that retries every error with linearly growing delay.
func LinearConfig(attempts int, step time.Duration) Config {
	return Config{
		MaxAttempts: attempts,
		BaseDelay:   step,
		MaxDelay:    time.Duration(attempts) * step,
		Backoff:     Linear,
		Retryable:   func(error) bool { return true },
	}
}

// Delay returns the wait before attempt+1 (attempt is zero-based).
func (c Config) Delay(attempt int) time.Duration {
	var delay time.Duration
	switch c.Backoff {
	case Linear:
		delay = c.BaseDelay * time.Duration(attempt+1)
	default:
		delay = time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt)))
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Do executes fn until it succeeds, returns a non-retryable error, or attempts run out.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = perrors.IsRetryable
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.Jitter {
			delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
