package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resumelens/internal/config"
	"resumelens/internal/observability"
	"resumelens/internal/watch"
)

const (
	promptDebounce  = 250 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)

// Start starts the HTTP server with all configured components and blocks
// until ctx is done or a termination signal arrives
func (s *Server) Start(ctx context.Context) error {
	httpServer := s.setupHTTPServer()

	if err := s.configureTLS(httpServer); err != nil {
		return err
	}

	if err := s.startWatchers(ctx); err != nil {
		s.stopWatchers()
		return err
	}

	s.startMetricsServer(ctx)
	s.displayServerInfo()

	return s.startWithGracefulShutdown(ctx, httpServer)
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.Host, s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
	}
}

// startMetricsServer serves Prometheus on its own port when one is configured
func (s *Server) startMetricsServer(ctx context.Context) {
	handler := s.om.MetricsHandler()
	settings := s.om.PrometheusSettings()
	if handler == nil || settings.Port == "" {
		return
	}
	observability.StartPrometheusServer(ctx, handler, settings, func(err error) {
		s.Logger.LogError(err, "Prometheus metrics server failed", "port", settings.Port)
	})
	s.Logger.Info("Prometheus metrics server started", "port", settings.Port, "endpoint", settings.Endpoint)
}

// startWatchers starts hot reloading of prompt files and Vault secrets
func (s *Server) startWatchers(ctx context.Context) error {
	metrics := s.om.Metrics()

	if s.prompts != nil && len(s.prompts.Files()) > 0 {
		w := watch.New("prompts", s.prompts.Files(), promptDebounce, func(changed []string) {
			for _, file := range changed {
				err := s.prompts.Reload(file)
				metrics.RecordReload(ctx, "prompts", err)
				if err != nil {
					s.Logger.LogError(err, "Failed to reload prompt file, keeping previous prompt", "file", file)
					continue
				}
				s.Logger.Info("Prompt file reloaded", "file", file)
			}
		}, s.Logger)
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to watch prompt files: %w", err)
		}
		s.watchers = append(s.watchers, w)
	}

	vaultCfg := s.AppConfig.Vault
	if s.vault == nil || vaultCfg.PollInterval <= 0 {
		return nil
	}

	if path := vaultCfg.Secrets.APIKeys; path != "" {
		if err := s.watchSecret(ctx, "api-keys", path, s.applyAPIKeysSecret); err != nil {
			return err
		}
	}
	if path := vaultCfg.Secrets.ProviderKey; path != "" {
		if err := s.watchSecret(ctx, "provider-key", path, s.applyProviderKeySecret); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) watchSecret(ctx context.Context, name, path string, apply SecretCallback) error {
	metrics := s.om.Metrics()
	vw := NewVaultWatcher(name, s.vault, path, s.AppConfig.Vault.PollInterval, func(secret *config.VaultSecret) error {
		err := apply(secret)
		metrics.RecordReload(ctx, name, err)
		return err
	}, s.Logger)
	if err := vw.Start(); err != nil {
		return err
	}
	s.watchers = append(s.watchers, vw)
	return nil
}

// applyAPIKeysSecret replaces the server API keys. A secret without keys is
// rejected so a bad write cannot open the API.
func (s *Server) applyAPIKeysSecret(secret *config.VaultSecret) error {
	keys, err := config.APIKeysFromSecret(secret)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("secret has no API keys, keeping the current ones")
	}
	s.SetAPIKeys(keys)
	s.Logger.Info("Server API keys rotated", "count", len(keys))
	return nil
}

// applyProviderKeySecret rotates the upstream provider key
func (s *Server) applyProviderKeySecret(secret *config.VaultSecret) error {
	key, err := secret.String("api_key")
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("secret has an empty api_key, keeping the current one")
	}
	s.factory.SetProviderKey(key)
	s.Logger.Info("Provider API key rotated", "masked_value", config.MaskSecret(key))
	return nil
}

// stopWatchers stops every watcher, including the certificate manager
func (s *Server) stopWatchers() {
	for _, w := range s.watchers {
		if err := w.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop watcher")
		}
	}
	s.watchers = nil

	if s.CertificateManager != nil {
		if err := s.CertificateManager.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop certificate manager")
		}
	}
}

// startWithGracefulShutdown starts the HTTP server and handles graceful shutdown
func (s *Server) startWithGracefulShutdown(ctx context.Context, server *http.Server) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)

	go func() {
		s.Logger.Info("Starting HTTP server",
			"address", server.Addr,
			"tls_enabled", server.TLSConfig != nil)

		var err error
		if server.TLSConfig != nil {
			// Certificates come from the certificate manager
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		s.stopWatchers()
		s.cleanupRateLimiter()
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
		s.Logger.Info("Received shutdown signal, starting graceful shutdown")
		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.stopWatchers()
	s.cleanupRateLimiter()

	s.Logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// cleanupRateLimiter cleans up the rate limiter resources
func (s *Server) cleanupRateLimiter() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.RateLimiter = nil
		s.Logger.Info("Rate limiter cleaned up")
	}
}
