package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"resumelens/internal/ai"
	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/extract"
	"resumelens/internal/fileparse"
	"resumelens/internal/keyexchange"
	"resumelens/internal/observability"
	"resumelens/internal/pipeline"
	"resumelens/internal/types"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// TLS Configuration
	TLSConfig config.TLSConfig

	// Certificate management
	CertificateManager *CertificateManager

	// API Authentication, replaced when keys rotate in Vault
	apiKeysMu sync.RWMutex
	apiKeys   map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	factory   *ai.Factory
	prompts   *config.PromptStore
	keys      *keyexchange.KeyPair
	parser    *fileparse.Parser
	driver    *pipeline.Driver
	om        *observability.Manager
	vault     VaultClientInterface
	validate  *validator.Validate
	formats   *formatCache
	basicSpec *extract.Validator
	deepSpec  *extract.Validator

	watchers []stopper

	Logger *errors.Logger
}

// Options are the collaborators of a Server
type Options struct {
	Version       string
	Factory       *ai.Factory
	Prompts       *config.PromptStore
	Keys          *keyexchange.KeyPair
	Observability *observability.Manager
	// Vault is nil when secrets are not watched
	Vault  VaultClientInterface
	Logger *errors.Logger
}

type stopper interface {
	Stop() error
}

// NewServer creates a new Server instance
func NewServer(appCfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger

	var rateLimiter *RateLimiter
	rl := appCfg.Server.RateLimit
	if rl.Enabled {
		rateLimiter = NewRateLimiter(rl.RequestsPerMin, rl.BurstCapacity, logger)
	}

	basicSpec, err := extract.NewValidator(types.BasicAnalysis{})
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis schema: %w", err)
	}
	deepSpec, err := extract.NewValidator(types.DeepInsights{})
	if err != nil {
		return nil, fmt.Errorf("failed to build deep insights schema: %w", err)
	}

	formats, err := newFormatCache(appCfg.App.FormatCacheSize, opts.Observability.Metrics())
	if err != nil {
		return nil, err
	}

	s := &Server{
		Host:           appCfg.Server.Host,
		Port:           appCfg.Server.Port,
		Version:        opts.Version,
		AppConfig:      appCfg,
		TLSConfig:      appCfg.Server.TLS,
		ReadTimeout:    appCfg.Server.ReadTimeout,
		WriteTimeout:   appCfg.Server.WriteTimeout,
		IdleTimeout:    appCfg.Server.IdleTimeout,
		MaxRequestSize: appCfg.App.MaxRequestSize,
		RateLimit:      &rl,
		RateLimiter:    rateLimiter,
		factory:        opts.Factory,
		prompts:        opts.Prompts,
		keys:           opts.Keys,
		parser:         fileparse.New(appCfg.App.MaxFileSize),
		driver:         pipeline.NewDriver(logger, opts.Observability.Metrics()),
		om:             opts.Observability,
		vault:          opts.Vault,
		validate:       newValidator(),
		formats:        formats,
		basicSpec:      basicSpec,
		deepSpec:       deepSpec,
		Logger:         logger,
	}
	s.SetAPIKeys(appCfg.Server.APIKeys)
	return s, nil
}

// SetAPIKeys replaces the accepted API keys. An empty list disables
// authentication.
func (s *Server) SetAPIKeys(keys []string) {
	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	s.apiKeysMu.Lock()
	defer s.apiKeysMu.Unlock()
	s.apiKeys = apiKeyMap
}

func (s *Server) apiKeyCount() int {
	s.apiKeysMu.RLock()
	defer s.apiKeysMu.RUnlock()
	return len(s.apiKeys)
}

func (s *Server) isValidAPIKey(key string) bool {
	s.apiKeysMu.RLock()
	defer s.apiKeysMu.RUnlock()
	return s.apiKeys[key]
}
