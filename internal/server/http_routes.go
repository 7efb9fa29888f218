package server

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"resumelens/internal/config"
)

// multipartOverhead is allowed on top of the file size limit for form fields
// and part headers
const multipartOverhead = 1 << 20

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	rateLimit := s.rateLimitMiddleware()
	bodyLimit := s.requestSizeLimitMiddleware(s.MaxRequestSize)
	fileLimit := s.requestSizeLimitMiddleware(s.AppConfig.App.MaxFileSize + multipartOverhead)

	api := func(pattern string, limit func(http.HandlerFunc) http.HandlerFunc, h http.HandlerFunc) {
		mux.HandleFunc(pattern, rateLimit(s.authMiddleware(limit(h))))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	if h := s.om.MetricsHandler(); h != nil && s.om.PrometheusSettings().Port == "" {
		mux.Handle("GET "+s.om.PrometheusSettings().Endpoint, h)
	}

	api("POST /deepseek", bodyLimit, s.handleRawStream)
	api("POST /deepseek/complete", fileLimit, s.handleComplete)
	api("POST /deepseek/analyze-resume", bodyLimit, s.handleAnalyze)
	api("POST /deepseek/analyze/deep-insights", bodyLimit, s.handleDeepInsights)
	api("POST /deepseek/format/hierarchy", bodyLimit, s.handleFormat)
	api("POST /deepseek/format/hierarchy/stream", bodyLimit, s.handleFormatStream)
	api("POST /deepseek/optimize-tag-candidates", bodyLimit, s.handleTagCandidates)
	api("POST /deepseek/validate-key", bodyLimit, s.handleValidateKey)
	api("GET /crypto/deepseek-public-key", bodyLimit, s.handlePublicKey)
	api("POST /file/parse", fileLimit, s.handleFileParse)
	api("GET /file/template/resume", bodyLimit, s.handleResumeTemplate)

	return mux
}

// Handler returns the complete handler chain
func (s *Server) Handler() http.Handler {
	return s.om.HTTPMiddleware()(s.corsMiddleware(s.requestIDMiddleware(s.setupRoutes())))
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if s.apiKeyCount() == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", clientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.isValidAPIKey(apiKey) {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", clientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"client_ip", clientIP(r),
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestAPIKey reads the X-API-Key header, falling back to a Bearer token
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware(limit int64) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next(w, r)
		}
	}
}

// requestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-ID when present
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// corsMiddleware answers preflight requests and tags responses for allowed
// origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.AppConfig.Server.CORS
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(cors, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
				if cors.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cors.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(cors config.CORSConfig, origin string) bool {
	return slices.Contains(cors.AllowedOrigins, "*") || slices.Contains(cors.AllowedOrigins, origin)
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
