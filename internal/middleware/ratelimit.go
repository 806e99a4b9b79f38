package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter. Call Run to evict idle clients.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, clients: make(map[string]*clientLimiter), now: time.Now}
}

// Run evicts idle client entries until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	t := time.NewTicker(limiterSweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-limiterIdleAfter)
	for ip, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter
}

// Middleware answers 429 with Retry-After once a client exceeds its bucket.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := rl.limiter(clientIP(r))
		res := lim.Reserve()
		if !res.OK() {
			writeTooManyRequests(w, 0)
			return
		}
		if d := res.Delay(); d > 0 {
			res.Cancel()
			writeTooManyRequests(w, int(d.Seconds())+1)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.Tokens())))
		next.ServeHTTP(w, r)
	})
}

// clientIP uses RemoteAddr only; forwarded headers are client-controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": http.StatusTooManyRequests, "message": "rate limit exceeded"})
}
