package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTTL       = 30 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter holds one token bucket per caller key. Buckets idle for
// longer than limiterIdleTTL are swept until ctx is done.
type keyedLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newKeyedLimiter(ctx context.Context, requestsPerSecond float64, burst int) *keyedLimiter {
	l := &keyedLimiter{
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
	go l.janitor(ctx)
	return l
}

func (l *keyedLimiter) janitor(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now.Add(-limiterIdleTTL))
		case <-ctx.Done():
			return
		}
	}
}

// sweep drops buckets last used before cutoff.
func (l *keyedLimiter) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// reserve takes a token for key. It returns zero when the request may
// proceed, or how long the caller should wait before retrying.
func (l *keyedLimiter) reserve(key string, now time.Time) time.Duration {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Minute
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

func (l *keyedLimiter) middleware(keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if wait := l.reserve(key, time.Now()); wait > 0 {
				log.Debug().Str("key", key).Dur("retry_after", wait).Str("path", r.URL.Path).Msg("rate limited")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, `{"title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller: the signed-in user when there is one,
// otherwise the remote address. It relies on chi's RealIP middleware having
// rewritten r.RemoteAddr.
func clientKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return "user:" + p.ID.String()
	}
	return remoteKey(r)
}

func remoteKey(r *http.Request) string {
	return "ip:" + r.RemoteAddr
}

// RateLimitByIP limits every request by remote address. It guards the whole
// API, including register and login, which carry no credential.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	return newKeyedLimiter(ctx, requestsPerSecond, burst).middleware(remoteKey)
}

// RateLimit limits board traffic per caller. Signed-in users get a bucket
// each wherever they connect from; anonymous readers share one per remote
// address. It must run after OptionalAuth or Auth.
func RateLimit(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	return newKeyedLimiter(ctx, requestsPerSecond, burst).middleware(clientKey)
}
