package server

import "fmt"

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
}

// displayEndpoints shows available API endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /health                            - Health check")
	fmt.Println("  GET  /stats                             - Server statistics")
	fmt.Println("  POST /deepseek                          - Raw model stream (ndjson)")
	fmt.Println("  POST /deepseek/complete                 - Prompt completion, optional file upload")
	fmt.Println("  POST /deepseek/analyze-resume           - Resume analysis (SSE)")
	fmt.Println("  POST /deepseek/analyze/deep-insights    - Deep insights (SSE)")
	fmt.Println("  POST /deepseek/format/hierarchy         - Restructure document")
	fmt.Println("  POST /deepseek/format/hierarchy/stream  - Restructure document (SSE)")
	fmt.Println("  POST /deepseek/optimize-tag-candidates  - Alternative phrasings")
	fmt.Println("  POST /deepseek/validate-key             - Check a provider API key")
	fmt.Println("  GET  /crypto/deepseek-public-key        - Key exchange public key")
	fmt.Println("  POST /file/parse                        - Extract text from an upload")
	fmt.Println("  GET  /file/template/resume              - Resume template download")
	if s.om.MetricsHandler() != nil {
		settings := s.om.PrometheusSettings()
		if settings.Port == "" {
			fmt.Printf("  GET  %-34s - Prometheus metrics\n", settings.Endpoint)
		} else {
			fmt.Printf("  Prometheus metrics on :%s%s\n", settings.Port, settings.Endpoint)
		}
	}
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if n := s.apiKeyCount(); n > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", n)
		fmt.Println("Include 'X-API-Key: <your-key>' header in API requests")
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
		fmt.Println("WARNING: API endpoints are publicly accessible!")
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
		fmt.Println("WARNING: No request size limits configured!")
	}
	fmt.Printf("Upload size limit: %.1f MB\n", float64(s.AppConfig.App.MaxFileSize)/(1024*1024))
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.RateLimit != nil && s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
		fmt.Println("WARNING: No rate limiting configured!")
	}
}
