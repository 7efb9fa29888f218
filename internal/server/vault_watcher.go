package server

import (
	"fmt"
	"sync"
	"time"

	"resumelens/internal/config"
	"resumelens/internal/errors"
)

// VaultClientInterface defines the Vault operations the watchers need
type VaultClientInterface interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// SecretCallback receives a secret whose version changed
type SecretCallback func(secret *config.VaultSecret) error

// VaultWatcher polls one KVv2 secret and calls back when its version
// increases. The version seen at Start is the baseline, since startup has
// already applied that secret.
type VaultWatcher struct {
	mu sync.RWMutex

	name         string
	client       VaultClientInterface
	secretPath   string
	pollInterval time.Duration
	onChange     SecretCallback
	logger       *errors.Logger

	stopChan    chan struct{}
	done        chan struct{}
	running     bool
	lastVersion int64
	lastCheck   time.Time
	lastError   string
}

// NewVaultWatcher creates a new VaultWatcher
func NewVaultWatcher(name string, client VaultClientInterface, secretPath string, pollInterval time.Duration, onChange SecretCallback, logger *errors.Logger) *VaultWatcher {
	return &VaultWatcher{
		name:         name,
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		onChange:     onChange,
		logger:       logger,
	}
}

// Start records the current version and begins polling
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher %s is already running", vw.name)
	}
	if vw.pollInterval <= 0 {
		return fmt.Errorf("vault watcher %s needs a positive poll interval", vw.name)
	}

	if secret, err := vw.client.GetSecretV2(vw.secretPath); err == nil {
		vw.lastVersion = secret.Version
	} else {
		vw.logger.LogError(err, "Failed to read initial secret version", "watcher", vw.name, "secret_path", vw.secretPath)
	}

	vw.stopChan = make(chan struct{})
	vw.done = make(chan struct{})
	vw.running = true
	go vw.pollLoop(vw.stopChan, vw.done)

	vw.logger.Info("Vault watcher started",
		"watcher", vw.name,
		"secret_path", vw.secretPath,
		"poll_interval", vw.pollInterval,
		"version", vw.lastVersion)
	return nil
}

// Stop stops the watcher and waits for an in-flight poll to finish
func (vw *VaultWatcher) Stop() error {
	vw.mu.Lock()
	if !vw.running {
		vw.mu.Unlock()
		return nil
	}
	close(vw.stopChan)
	vw.running = false
	done := vw.done
	vw.mu.Unlock()

	<-done
	vw.logger.Info("Vault watcher stopped", "watcher", vw.name)
	return nil
}

// pollLoop polls Vault for secret changes
func (vw *VaultWatcher) pollLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-stop:
			return
		}
	}
}

// poll checks once and applies a newer version
func (vw *VaultWatcher) poll() {
	secret, changed, err := vw.checkForUpdates()
	if err == nil && changed {
		vw.logger.Info("Vault secret changed, applying new version",
			"watcher", vw.name,
			"secret_path", vw.secretPath,
			"version", secret.Version)
		err = vw.onChange(secret)
	}

	vw.mu.Lock()
	vw.lastCheck = time.Now()
	vw.lastError = ""
	if err != nil {
		vw.lastError = err.Error()
	}
	vw.mu.Unlock()

	if err != nil {
		vw.logger.LogError(err, "Failed to apply Vault secret", "watcher", vw.name, "secret_path", vw.secretPath)
	}
}

// checkForUpdates reads the secret and reports whether its version is newer
// than the last one seen
func (vw *VaultWatcher) checkForUpdates() (*config.VaultSecret, bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read secret: %w", err)
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()
	if secret.Version > vw.lastVersion {
		vw.lastVersion = secret.Version
		return secret, true, nil
	}
	return secret, false, nil
}

// Status returns the current status of the VaultWatcher for health reporting
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	return map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
		"last_check":    vw.lastCheck,
		"last_error":    vw.lastError,
	}
}
