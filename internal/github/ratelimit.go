package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultQuotaCeiling is GitHub's hourly quota for authenticated callers.
const DefaultQuotaCeiling = 5000

// RateLimiter is the process-wide call budget shared by every remote call.
// It enforces a minimum delay between calls and suspends callers once the
// platform reports the quota as exhausted, until the reported reset instant.
type RateLimiter struct {
	mu        sync.Mutex
	minDelay  time.Duration
	ceiling   int
	remaining int
	resetAt   time.Time
	lastCall  time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	onWait func(d time.Duration)
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithClock replaces the limiter's clock and sleep function.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *RateLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithWaitHook is called whenever a caller is suspended until quota reset.
func WithWaitHook(fn func(d time.Duration)) LimiterOption {
	return func(l *RateLimiter) { l.onWait = fn }
}

// NewRateLimiter creates a limiter with the given delay floor and quota ceiling.
func NewRateLimiter(minDelay time.Duration, ceiling int, opts ...LimiterOption) *RateLimiter {
	if ceiling <= 0 {
		ceiling = DefaultQuotaCeiling
	}
	l := &RateLimiter{
		minDelay:  minDelay,
		ceiling:   ceiling,
		remaining: ceiling,
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// Wait blocks until the next call may be issued and reserves one unit of quota.
// Callers are served one at a time.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.remaining <= 0 {
		if d := l.resetAt.Sub(l.now()); d > 0 {
			if l.onWait != nil {
				l.onWait(d)
			}
			if err := l.sleep(ctx, d); err != nil {
				return err
			}
		}
		l.remaining = l.ceiling
	}

	if !l.lastCall.IsZero() {
		if d := l.minDelay - l.now().Sub(l.lastCall); d > 0 {
			if err := l.sleep(ctx, d); err != nil {
				return err
			}
		}
	}

	l.lastCall = l.now()
	l.remaining--
	return nil
}

// Observe records the quota the platform reported on its last response.
func (l *RateLimiter) Observe(remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining = remaining
	if !resetAt.IsZero() {
		l.resetAt = resetAt
	}
}

// ObserveHeaders reads X-RateLimit-Remaining / X-RateLimit-Reset (and
// Retry-After for secondary limits). Missing headers leave state unchanged.
func (l *RateLimiter) ObserveHeaders(h http.Header) {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			l.Observe(0, l.now().Add(time.Duration(secs)*time.Second))
			return
		}
	}
	rem := h.Get("X-RateLimit-Remaining")
	if rem == "" {
		return
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return
	}
	var reset time.Time
	if rs := h.Get("X-RateLimit-Reset"); rs != "" {
		if epoch, err := strconv.ParseInt(rs, 10, 64); err == nil {
			reset = time.Unix(epoch, 0)
		}
	}
	l.Observe(remaining, reset)
}

// Remaining returns the current quota estimate and reset instant.
func (l *RateLimiter) Remaining() (int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining, l.resetAt
}
