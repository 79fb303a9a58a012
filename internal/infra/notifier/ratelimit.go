package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one transport under its messaging API quota. It is shared
// by every concurrent send on that transport, so a 429 seen by one sender
// pauses all of them until the service's retry-after has passed.
type RateLimiter struct {
	service string
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
	now         func() time.Time
}

// NewRateLimiter creates a token bucket allowing burst requests at once and
// requestsPerSecond sustained.
func NewRateLimiter(service string, requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		now:     time.Now,
	}
}

// Allow blocks until the transport is not paused and a token is available,
// or ctx is done.
func (r *RateLimiter) Allow(ctx context.Context) error {
	if wait := r.pauseRemaining(); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return r.limiter.Wait(ctx)
}

// Pause holds every caller of Allow for d. Overlapping pauses keep the later
// end.
func (r *RateLimiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := r.now().Add(d); until.After(r.pausedUntil) {
		r.pausedUntil = until
	}
}

func (r *RateLimiter) pauseRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausedUntil.Sub(r.now())
}

// Do runs send after Allow, retrying only when the service answered 429.
// Any other failure is returned at once: a request the service may have
// processed is never repeated.
func (r *RateLimiter) Do(ctx context.Context, maxAttempts int, send func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.Allow(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: context canceled during rate limit backoff: %w", r.service, err)
			}
			return fmt.Errorf("%s: rate limiter: %w", r.service, err)
		}

		err := send(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		rateLimitErr, ok := is429Error(err)
		if !ok || attempt == maxAttempts {
			return err
		}

		slog.Warn("rate limit hit, backing off",
			slog.String("service", r.service),
			slog.Duration("retry_after", rateLimitErr.RetryAfter),
			slog.Int("attempt", attempt))
		r.Pause(rateLimitErr.RetryAfter)
	}
	return lastErr
}
