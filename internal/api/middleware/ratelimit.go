package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter tracks failed authentication attempts per client IP. Each
// failure spends one token; a client with no tokens left is blocked until
// the bucket refills.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	every    time.Duration
	burst    int
}

// NewIPRateLimiter allows burst failures, refilling one every interval.
// Stale entries are dropped until ctx is canceled.
func NewIPRateLimiter(ctx context.Context, every time.Duration, burst int) *IPRateLimiter {
	rl := &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		every:    every,
		burst:    burst,
	}
	go rl.cleanup(ctx)
	return rl
}

// NewAuthFailureLimiter allows 5 failures per minute per IP.
func NewAuthFailureLimiter(ctx context.Context) *IPRateLimiter {
	return NewIPRateLimiter(ctx, 12*time.Second, 5)
}

// Blocked reports whether ip has used up its failure budget.
func (rl *IPRateLimiter) Blocked(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.limiters[ip]
	if !ok {
		return false
	}
	return entry.limiter.Tokens() < 1
}

// Record spends one token for a failed attempt from ip.
func (rl *IPRateLimiter) Record(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Every(rl.every), rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	entry.limiter.Allow()
}

func (rl *IPRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, entry := range rl.limiters {
				if time.Since(entry.lastSeen) > 15*time.Minute {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For for reverse proxy setups
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
