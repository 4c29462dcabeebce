package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// visitorLimiter throttles callers by IP with a token bucket per visitor.
// Buckets refill continuously at ratePerSec up to burst tokens; each request
// spends one token.
type visitorLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	ratePerSec float64
	burst      float64
	now        func() time.Time
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

func newVisitorLimiter(ratePerSec float64, burst int) *visitorLimiter {
	vl := &visitorLimiter{
		visitors:   make(map[string]*visitor),
		ratePerSec: ratePerSec,
		burst:      float64(burst),
		now:        time.Now,
	}
	go vl.evictIdle(5*time.Minute, 10*time.Minute)
	return vl
}

// take spends a token for ip, refilling the bucket for the time elapsed
// since the visitor was last seen. It reports whether the request may
// proceed.
func (vl *visitorLimiter) take(ip string) bool {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	now := vl.now()
	v, ok := vl.visitors[ip]
	if !ok {
		v = &visitor{tokens: vl.burst, lastSeen: now}
		vl.visitors[ip] = v
	} else {
		refill := now.Sub(v.lastSeen).Seconds() * vl.ratePerSec
		v.tokens = min(v.tokens+refill, vl.burst)
		v.lastSeen = now
	}

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// evictIdle drops visitors not seen for maxIdle, checking every interval.
// Evicted visitors simply start over with a full bucket.
func (vl *visitorLimiter) evictIdle(interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		vl.mu.Lock()
		cutoff := vl.now().Add(-maxIdle)
		for ip, v := range vl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(vl.visitors, ip)
			}
		}
		vl.mu.Unlock()
	}
}

// clientIP resolves the caller address, trusting X-Real-Ip when chi's
// RealIP middleware has populated it.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit returns middleware that answers 429 Too Many Requests once a
// caller exhausts its token bucket of burst requests refilling at
// ratePerSec.
func RateLimit(ratePerSec float64, burst int) func(http.Handler) http.Handler {
	limiter := newVisitorLimiter(ratePerSec, burst)
	retryAfter := "1"
	if ratePerSec < 1 {
		retryAfter = strconv.Itoa(int(1 / ratePerSec))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.take(clientIP(r)) {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
