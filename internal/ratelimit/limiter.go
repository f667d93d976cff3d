package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default budget for TMDB: the service publishes roughly 40 requests per
// 10 seconds per IP; staying at 35 leaves margin for retries.
const (
	DefaultMaxRequests = 35
	DefaultWindow      = 10 * time.Second

	// admitEpsilon pads the computed wait so the oldest timestamp has
	// definitely left the window when the caller proceeds.
	admitEpsilon = 50 * time.Millisecond
)

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter admits at most maxRequests events inside any trailing window.
// It is a sliding-window counter, not a token bucket: admission checks prune
// timestamps older than the window and block the caller until the oldest
// retained one ages out. Requests are never dropped.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	mu       sync.Mutex
	admitted []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleep overrides the blocking sleep, used by tests to observe waits.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New creates a Limiter. Non-positive arguments fall back to the defaults.
func New(maxRequests int, window time.Duration, opts ...Option) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		sleep:       SleepWithContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until one more request fits inside the trailing window, then
// records the admission. It returns early only on context cancellation. The
// wait is bounded by one window length per blocked admission.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.admitted) < l.maxRequests {
			l.admitted = append(l.admitted, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.admitted[0]) + admitEpsilon
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops timestamps that have left the trailing window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for keep < len(l.admitted) && !l.admitted[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[keep:]...)
	}
}
