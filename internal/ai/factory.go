package ai

import (
	"context"
	"net/http"
	"sync"

	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/observability"
)

// Options select the key and model of one request. Empty fields fall back
// to configuration.
type Options struct {
	APIKey string
	Model  string
}

// Factory builds providers per request. Circuit breakers are created once
// per operation and shared by every provider of that operation.
type Factory struct {
	cfg        *config.Config
	prompts    *Prompts
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *errors.Logger

	mu          sync.RWMutex
	providerKey string
	breakers    map[string]*Breaker
}

// NewFactory creates a provider factory. httpClient may be nil.
func NewFactory(cfg *config.Config, prompts *Prompts, httpClient *http.Client, metrics *observability.Metrics, logger *errors.Logger) *Factory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	f := &Factory{
		cfg:        cfg,
		prompts:    prompts,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger,
		breakers:   make(map[string]*Breaker, len(config.Operations)),
	}
	for _, op := range config.Operations {
		opCfg := cfg.GetOperationConfig(op)
		f.breakers[op] = NewBreaker(op, *opCfg.CircuitBreaker, logger)
	}
	return f
}

// Prompts returns the prompt builder shared by all operations.
func (f *Factory) Prompts() *Prompts {
	return f.prompts
}

// SetProviderKey replaces the configured provider key, e.g. after rotation
// in Vault. Operations with their own key keep it.
func (f *Factory) SetProviderKey(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providerKey = key
}

// Provider returns a provider for op honoring the caller's key and model.
func (f *Factory) Provider(ctx context.Context, op string, opts Options) (Provider, error) {
	opCfg := f.cfg.GetOperationConfig(op)

	if opts.Model != "" {
		if !f.cfg.IsModelAllowed(opts.Model) {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "model is not allowed", nil).
				WithContext("model", opts.Model)
		}
		opCfg.Model = opts.Model
	}

	f.mu.RLock()
	rotated := f.providerKey
	f.mu.RUnlock()
	switch {
	case opts.APIKey != "":
		opCfg.APIKey = opts.APIKey
	case rotated != "" && opCfg.APIKey == f.cfg.AI.APIKey:
		opCfg.APIKey = rotated
	}
	if opCfg.APIKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey, "no provider API key configured", nil).
			WithContext("operation", op)
	}

	breaker := f.breakers[op]
	switch opCfg.Provider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, opCfg, op, breaker, f.httpClient, f.metrics, f.logger)
	case config.ProviderDeepSeek, "":
		return NewDeepSeekProvider(opCfg, op, breaker, f.httpClient, f.metrics, f.logger), nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "unsupported AI provider", nil).
			WithContext("provider", opCfg.Provider)
	}
}

// BreakerStats reports the breaker of every operation.
func (f *Factory) BreakerStats() map[string]any {
	stats := make(map[string]any, len(f.breakers))
	for op, b := range f.breakers {
		stats[op] = b.Stats()
	}
	return stats
}

// Healthy reports whether every breaker is closed.
func (f *Factory) Healthy() bool {
	for _, b := range f.breakers {
		if !b.IsHealthy() {
			return false
		}
	}
	return true
}
