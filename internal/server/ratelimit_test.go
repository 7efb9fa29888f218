package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"resumelens/internal/errors"
)

func TestRateLimiter_Reserve(t *testing.T) {
	rl := NewRateLimiter(60, 2, errors.Discard())
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))

	wait, ok := rl.Reserve("a")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Second)

	assert.True(t, rl.Allow("b"), "buckets are per key")
	assert.Equal(t, 2, rl.GetStats()["active_limiters"])

	rl.Close()
	assert.Equal(t, 0, rl.GetStats()["active_limiters"])
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, "1", retryAfter(0))
	assert.Equal(t, "1", retryAfter(200*time.Millisecond))
	assert.Equal(t, "60", retryAfter(59*time.Second+time.Millisecond))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.7:5555", "192.0.2.7"},
		{"forwarded first valid", map[string]string{"X-Forwarded-For": "junk, 198.51.100.2, 10.0.0.1"}, "192.0.2.7:5555", "198.51.100.2"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "192.0.2.7:5555", "203.0.113.9"},
		{"invalid headers ignored", map[string]string{"X-Forwarded-For": "nope", "X-Real-IP": "nope"}, "192.0.2.7:5555", "192.0.2.7"},
		{"remote without port", nil, "192.0.2.7", "192.0.2.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-API-Key", "k1")

	key, kind := rateLimitKey(req, true, true)
	assert.Equal(t, "api:k1", key)
	assert.Equal(t, "api_key", kind)

	key, kind = rateLimitKey(req, false, true)
	assert.Equal(t, "ip:192.0.2.7", key)
	assert.Equal(t, "ip", kind)

	key, _ = rateLimitKey(req, false, false)
	assert.Empty(t, key)
}
