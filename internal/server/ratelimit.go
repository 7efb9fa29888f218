package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"resumelens/internal/errors"
)

const (
	// idle buckets are forgotten after this long; a fresh one starts full
	limiterIdleTTL = 10 * time.Minute
	maxLimiters    = 65536
)

// RateLimiter hands out one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	perMin   int
	burst    int
	logger   *errors.Logger
}

// NewRateLimiter allows requestsPerMin steady requests per client with
// bursts of up to burstCapacity.
func NewRateLimiter(requestsPerMin int, burstCapacity int, logger *errors.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxLimiters, nil, limiterIdleTTL),
		perMin:   requestsPerMin,
		burst:    burstCapacity,
		logger:   logger,
	}
}

func (m *RateLimiter) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters.Get(key)
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(m.perMin)/60.0), m.burst)
	}
	// re-adding refreshes the idle deadline
	m.limiters.Add(key, l)
	return l
}

// Reserve takes a token for key. When none is available it returns the
// wait until one is, and leaves the bucket untouched.
func (m *RateLimiter) Reserve(key string) (time.Duration, bool) {
	r := m.limiter(key).Reserve()
	if !r.OK() {
		return 0, false
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return d, false
	}
	return 0, true
}

// Allow reports whether key may make a request now.
func (m *RateLimiter) Allow(key string) bool {
	_, ok := m.Reserve(key)
	return ok
}

// GetStats returns current rate limiter statistics
func (m *RateLimiter) GetStats() map[string]any {
	return map[string]any{
		"active_limiters": m.limiters.Len(),
		"rate_per_minute": m.perMin,
		"burst_capacity":  m.burst,
		"idle_ttl":        limiterIdleTTL.String(),
	}
}

// Close forgets every bucket.
func (m *RateLimiter) Close() {
	m.limiters.Purge()
	if m.logger != nil {
		m.logger.Debug("Rate limiter closed")
	}
}

// rateLimitMiddleware rejects clients over their budget with 429 and a
// Retry-After telling them when the next token lands.
func (s *Server) rateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if s.RateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key, keyType := rateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
			if key == "" {
				next(w, r)
				return
			}

			wait, ok := s.RateLimiter.Reserve(key)
			if !ok {
				s.Logger.Info("Rate limit exceeded",
					"key_type", keyType,
					"endpoint", r.URL.Path,
					"client_ip", clientIP(r),
					"retry_after", wait)
				s.om.Metrics().RecordRateLimitHit(r.Context(), keyType)
				w.Header().Set("Retry-After", retryAfter(wait))
				writeErrorResponse(w, errors.ErrCodeRateLimited, "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// retryAfter rounds wait up to whole seconds, at least one
func retryAfter(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// rateLimitKey prefers the caller's API key and falls back to the client IP.
func rateLimitKey(r *http.Request, byAPIKey, byIP bool) (key, keyType string) {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey, "api_key"
		}
	}
	if byIP {
		return "ip:" + clientIP(r), "ip"
	}
	return "", ""
}

// clientIP is the first valid address of X-Forwarded-For, then X-Real-IP,
// then the connection's remote host.
func clientIP(r *http.Request) string {
	candidates := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	candidates = append(candidates, r.Header.Get("X-Real-IP"))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if net.ParseIP(c) != nil {
			return c
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
