package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/stats"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewIPRateLimiter creates a limiter allowing r requests per second per IP with the given burst
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

// Burst returns the per-IP burst limit
func (i *IPRateLimiter) Burst() int {
	return i.burst
}

// GetLimiter returns the bucket for ip, creating it on first use
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.visitors[ip] = v
	}
	v.lastSeen = i.now()
	return v.limiter
}

// Remaining returns the whole tokens left in ip's bucket
func (i *IPRateLimiter) Remaining(ip string) int {
	return int(math.Floor(i.GetLimiter(ip).Tokens()))
}

// Len returns the number of tracked IPs
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.visitors)
}

// Evict forgets IPs not seen for maxIdle and returns how many were removed
func (i *IPRateLimiter) Evict(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := i.now().Add(-maxIdle)
	removed := 0
	for ip, v := range i.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(i.visitors, ip)
			removed++
		}
	}
	return removed
}

// StartEviction runs Evict every interval until ctx is done
func (i *IPRateLimiter) StartEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := i.Evict(maxIdle); n > 0 {
				log.Debugf("%s Evicted %d idle clients", logcolors.LogRateLimit, n)
			}
		}
	}
}

// Middleware rejects clients over their rate with 429. Requests carrying apiKey bypass the limit.
func (i *IPRateLimiter) Middleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("X-API-Key") == apiKey {
				w.Header().Set("X-RateLimit-Bypass", "true")
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", i.burst))

			if i.GetLimiter(ip).Allow() {
				stats.Get().RecordRateLimit("normal")
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", i.Remaining(ip)))
				next.ServeHTTP(w, r)
				return
			}

			stats.Get().RecordRateLimit("exceeded")
			log.Warnf("%s IP %s exceeded the rate limit", logcolors.LogRateLimit, ip)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many requests","message":"Rate limit exceeded, retry later"}`))
		})
	}
}

// clientIP strips the port from the remote address
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
