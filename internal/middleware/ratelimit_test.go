package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	h := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}).Middleware(okHandler())

	for range 2 {
		rec := hit(h, "10.0.0.1:1000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := hit(h, "10.0.0.1:2000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimiter_PerClient(t *testing.T) {
	h := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}).Middleware(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
}

func TestRateLimiter_SweepEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiter("10.0.0.1")
	now = now.Add(limiterIdleAfter + time.Second)
	rl.limiter("10.0.0.2")
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"ipv4", "192.168.1.1:12345", "", "192.168.1.1"},
		{"ipv6", "[::1]:12345", "", "::1"},
		{"forwarded header ignored", "10.0.0.1:1234", "203.0.113.50", "10.0.0.1"},
		{"no port", "10.0.0.9", "", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
