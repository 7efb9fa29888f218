package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/observability"
	"resumelens/internal/watch"
)

// certDebounce collapses the burst of events an editor or cert-manager
// produces while rewriting a key pair
const certDebounce = 500 * time.Millisecond

// CertificateManager serves the current TLS certificates and swaps them in
// place when the files or the Vault secret change
type CertificateManager struct {
	mu sync.RWMutex

	serverCert       *tls.Certificate
	caCertPool       *x509.CertPool
	serverCertExpiry time.Time

	// config holds the current sources; Vault rotation replaces the content fields
	config config.TLSConfig

	fileWatcher  *watch.Watcher
	vaultWatcher *VaultWatcher

	reloadCallbacks []ReloadCallback
	metrics         *observability.Metrics
	logger          *errors.Logger

	reloadCount        int64
	reloadSuccessCount int64
	reloadFailureCount int64
	lastReloadTime     time.Time
	lastReloadSuccess  bool
	lastReloadError    string
}

// ReloadCallback is called when certificates are reloaded
type ReloadCallback func(success bool, err error)

// CertificateMetrics holds metrics about certificate operations
type CertificateMetrics struct {
	ReloadCount        int64
	ReloadSuccessCount int64
	ReloadFailureCount int64
	LastReloadTime     time.Time
	LastReloadSuccess  bool
	LastReloadError    string
}

// NewCertificateManager creates a certificate manager and loads the initial
// certificates
func NewCertificateManager(tlsConfig config.TLSConfig, metrics *observability.Metrics, logger *errors.Logger) (*CertificateManager, error) {
	cm := &CertificateManager{
		config:  tlsConfig,
		metrics: metrics,
		logger:  logger,
	}
	if err := cm.loadCertificates(); err != nil {
		return nil, fmt.Errorf("failed to load initial certificates: %w", err)
	}
	return cm, nil
}

// WatchFiles reloads the certificates when the certificate files change.
// Certificates loaded from content have nothing to watch.
func (cm *CertificateManager) WatchFiles() error {
	files := []string{cm.config.CertFile, cm.config.KeyFile}
	if cm.config.Mode == "mutual" {
		files = append(files, cm.config.CAFile)
	}
	var present []string
	for _, f := range files {
		if f != "" {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}

	w := watch.New("tls", present, certDebounce, func(changed []string) {
		cm.logger.Info("Certificate files changed, reloading", "files", changed)
		_ = cm.ReloadCertificates()
	}, cm.logger)
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start certificate file watcher: %w", err)
	}
	cm.fileWatcher = w
	return nil
}

// WatchVault reloads the certificates when the Vault TLS secret changes
func (cm *CertificateManager) WatchVault(client VaultClientInterface, path string, interval time.Duration) error {
	vw := NewVaultWatcher("tls", client, path, interval, cm.applySecret, cm.logger)
	if err := vw.Start(); err != nil {
		return err
	}
	cm.vaultWatcher = vw
	return nil
}

// applySecret swaps in certificate content from Vault. The previous
// certificates stay in use when the new ones do not load.
func (cm *CertificateManager) applySecret(secret *config.VaultSecret) error {
	cm.mu.Lock()
	previous := cm.config
	for field, target := range map[string]*string{
		"cert": &cm.config.CertContent,
		"key":  &cm.config.KeyContent,
		"ca":   &cm.config.CAContent,
	} {
		if content, ok := secret.Data[field].(string); ok && content != "" {
			*target = content
		}
	}
	cm.mu.Unlock()

	if err := cm.ReloadCertificates(); err != nil {
		cm.mu.Lock()
		cm.config = previous
		cm.mu.Unlock()
		return err
	}
	return nil
}

// Stop stops the watchers
func (cm *CertificateManager) Stop() error {
	var firstErr error
	if cm.fileWatcher != nil {
		firstErr = cm.fileWatcher.Stop()
	}
	if cm.vaultWatcher != nil {
		if err := cm.vaultWatcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetServerCertificate returns the current server certificate
func (cm *CertificateManager) GetServerCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.serverCert == nil {
		return nil, fmt.Errorf("no server certificate available")
	}
	return cm.serverCert, nil
}

// GetCACertPool returns the current client CA pool
func (cm *CertificateManager) GetCACertPool() *x509.CertPool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.caCertPool
}

// Apply makes tlsConfig serve the managed certificates. In mutual mode every
// handshake verifies clients against the current CA pool.
func (cm *CertificateManager) Apply(tlsConfig *tls.Config) {
	tlsConfig.GetCertificate = cm.GetServerCertificate
	if cm.config.Mode != "mutual" {
		return
	}

	tlsConfig.ClientCAs = cm.GetCACertPool()
	base := tlsConfig.Clone()
	tlsConfig.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		c := base.Clone()
		c.ClientCAs = cm.GetCACertPool()
		return c, nil
	}
}

// ReloadCertificates reloads the certificates from their sources
func (cm *CertificateManager) ReloadCertificates() error {
	err := cm.loadCertificates()
	cm.updateReloadMetrics(err)
	cm.metrics.RecordReload(context.Background(), "tls", err)
	if err != nil {
		cm.logger.LogError(err, "Failed to reload TLS certificates")
	} else {
		cm.logger.Info("TLS certificates reloaded", "expires", cm.expiry())
	}
	for _, callback := range cm.callbacks() {
		callback(err == nil, err)
	}
	return err
}

// AddReloadCallback registers a callback for reloads
func (cm *CertificateManager) AddReloadCallback(callback ReloadCallback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.reloadCallbacks = append(cm.reloadCallbacks, callback)
}

func (cm *CertificateManager) callbacks() []ReloadCallback {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]ReloadCallback(nil), cm.reloadCallbacks...)
}

func (cm *CertificateManager) expiry() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.serverCertExpiry
}

// CheckExpiry returns the time until the server certificate expires
func (cm *CertificateManager) CheckExpiry() (time.Duration, error) {
	expiry := cm.expiry()
	if expiry.IsZero() {
		return 0, fmt.Errorf("server certificate expiry unknown")
	}
	return time.Until(expiry), nil
}

// GetMetrics returns reload statistics
func (cm *CertificateManager) GetMetrics() CertificateMetrics {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return CertificateMetrics{
		ReloadCount:        cm.reloadCount,
		ReloadSuccessCount: cm.reloadSuccessCount,
		ReloadFailureCount: cm.reloadFailureCount,
		LastReloadTime:     cm.lastReloadTime,
		LastReloadSuccess:  cm.lastReloadSuccess,
		LastReloadError:    cm.lastReloadError,
	}
}

// ReloadStatus describes the active watchers
func (cm *CertificateManager) ReloadStatus() map[string]any {
	status := map[string]any{
		"file_watcher_enabled":  cm.fileWatcher != nil,
		"vault_watcher_enabled": cm.vaultWatcher != nil,
	}
	if cm.fileWatcher != nil {
		status["file_watcher_running"] = cm.fileWatcher.IsRunning()
		status["watched_files"] = cm.fileWatcher.Files()
	}
	if cm.vaultWatcher != nil {
		status["vault_watcher_status"] = cm.vaultWatcher.Status()
	}
	return status
}

// loadCertificates loads the pair and, in mutual mode, the CA pool, then
// swaps them in together
func (cm *CertificateManager) loadCertificates() error {
	cm.mu.RLock()
	cfg := cm.config
	cm.mu.RUnlock()

	cert, err := loadCertificatePair(cfg)
	if err != nil {
		return err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse server certificate: %w", err)
	}

	var pool *x509.CertPool
	if cfg.Mode == "mutual" {
		caPEM, err := loadCACertificate(cfg)
		if err != nil {
			return err
		}
		pool = x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return fmt.Errorf("failed to append CA cert")
		}
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.serverCert = &cert
	cm.serverCertExpiry = leaf.NotAfter
	cm.caCertPool = pool
	return nil
}

// updateReloadMetrics updates the reload counters
func (cm *CertificateManager) updateReloadMetrics(err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.reloadCount++
	cm.lastReloadTime = time.Now()
	cm.lastReloadSuccess = err == nil
	if err != nil {
		cm.reloadFailureCount++
		cm.lastReloadError = err.Error()
	} else {
		cm.reloadSuccessCount++
		cm.lastReloadError = ""
	}
}

// loadCertificatePair loads the server certificate from content or files
func loadCertificatePair(cfg config.TLSConfig) (tls.Certificate, error) {
	if cfg.CertContent != "" && cfg.KeyContent != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.CertContent), []byte(cfg.KeyContent))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load server cert/key from content: %w", err)
		}
		return cert, nil
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load server cert/key from files: %w", err)
		}
		return cert, nil
	}

	return tls.Certificate{}, fmt.Errorf("TLS certificate and key are required (provide either files or content)")
}

// loadCACertificate loads the CA certificate from content or file
func loadCACertificate(cfg config.TLSConfig) ([]byte, error) {
	if cfg.CAContent != "" {
		return []byte(cfg.CAContent), nil
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		return caCert, nil
	}

	return nil, fmt.Errorf("CA certificate is required for mutual TLS mode (provide either caFile or caContent)")
}
