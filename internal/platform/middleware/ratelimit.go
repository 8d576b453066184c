package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/platform/httputil"
	"irrl/pkg/requestcontext"
)

// RateLimiter enforces a per-client sliding window over request timestamps.
// The window is exact rather than bucketed, which avoids the burst at window
// boundaries that fixed counters allow. State is in-process; each instance
// enforces its own share of the limit.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewRateLimiter returns a limiter allowing limit requests per window for
// each client IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Middleware rejects requests over the limit with 429 and standard
// X-RateLimit headers. Clients are keyed by the IP recorded by RequestMeta,
// so this must be mounted after it.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestcontext.ClientIP(r.Context())
		allowed, remaining, resetAt := l.allow(key, time.Now())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := trimWindow(l.clients[key], now.Add(-l.window))
	if len(stamps) >= l.limit {
		l.clients[key] = stamps
		return false, 0, stamps[0].Add(l.window)
	}

	stamps = append(stamps, now)
	l.clients[key] = stamps
	return true, l.limit - len(stamps), stamps[0].Add(l.window)
}

// trimWindow drops timestamps at or before the cutoff. Timestamps are
// appended in order, so the survivors are a suffix.
func trimWindow(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
