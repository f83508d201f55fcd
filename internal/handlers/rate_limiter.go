package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) bool
	// RetryAfter is how long a throttled caller waits for the next token.
	RetryAfter() time.Duration
}

func writeRateLimited(ctx context.Context, w http.ResponseWriter, limiter rateLimiter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", message, http.StatusTooManyRequests).
		WithRetryAfter(limiter.RetryAfter()))
}

// keyedRateLimiter keeps one token bucket per key. Buckets idle for longer than the window are
// dropped so the map stays bounded by the number of active callers.
type keyedRateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newKeyedRateLimiter allows limit events per window for each key, bursting up to limit.
func newKeyedRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedRateLimiter{
		limit:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

func (l *keyedRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.pruneIdleLocked(now)
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *keyedRateLimiter) RetryAfter() time.Duration {
	if l == nil || l.limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

func (l *keyedRateLimiter) pruneIdleLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.window {
			delete(l.buckets, key)
		}
	}
}
