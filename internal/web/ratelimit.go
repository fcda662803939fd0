package web

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter is a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter allows n requests per window with a burst of n.
func newRateLimiter(n int, window time.Duration) *rateLimiter {
	if n <= 0 {
		n = 1
	}
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(n) / window.Seconds()),
		burst:    n,
		idle:     2 * window,
		now:      time.Now,
	}
}

// allow consumes a token for ip. Idle visitors are swept on the way.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, k)
		}
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// retryAfter is the wait in whole seconds until one token refills.
func (rl *rateLimiter) retryAfter() int {
	secs := int(time.Duration(float64(time.Second) / float64(rl.limit)).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// middleware returns an HTTP middleware that rate limits by IP. RemoteAddr
// has already been rewritten by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			writeError(w, r, http.StatusTooManyRequests, "RATE001", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
