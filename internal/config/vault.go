package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"resumelens/internal/errors"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	// PollInterval is how often watched secrets are checked for a new
	// version. Zero disables rotation.
	PollInterval time.Duration `mapstructure:"pollInterval"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets defines where to find secrets in Vault (KVv2 paths)
type VaultSecrets struct {
	// APIKeys holds a "keys" field with comma-separated values: "key1,key2,key3"
	APIKeys     string `mapstructure:"apiKeys"`
	ProviderKey string `mapstructure:"providerKey"` // "api_key" field, the upstream model provider key
	TLSCerts    string `mapstructure:"tlsCerts"`    // "cert", "key" and "ca" fields with PEM content
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// VaultSecret represents a secret read from Vault's KVv2 engine.
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// NewVaultClient creates a new Vault client from configuration. It returns
// nil when Vault is disabled.
func NewVaultClient(config VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !config.Enabled {
		logger.Debug("Vault integration disabled")
		return nil, nil
	}

	vaultConfig := api.DefaultConfig()
	if config.Address != "" {
		vaultConfig.Address = config.Address
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to create vault client", err)
	}
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	token, err := resolveVaultToken(config)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "failed to connect to vault", err).
			WithContext("address", config.Address)
	}

	logger.Info("Successfully connected to Vault",
		"address", config.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken resolves the Vault token from config or file
func resolveVaultToken(config VaultConfig) (string, error) {
	token := config.Token
	if token == "" && config.TokenFile != "" {
		tokenBytes, err := os.ReadFile(config.TokenFile)
		if err != nil {
			return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to read vault token file", err).
				WithContext("file", config.TokenFile)
		}
		token = strings.TrimSpace(string(tokenBytes))
	}
	if token == "" {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "vault token is required when vault is enabled", nil)
	}
	return token, nil
}

// GetSecretV2 retrieves a secret from a Vault KVv2 store.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return parseKVv2(secret.Data, path)
}

// parseKVv2 unpacks the data and metadata.version fields of a KVv2 response
func parseKVv2(raw map[string]any, path string) (*VaultSecret, error) {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := raw["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}

	var version int64
	switch v := metadata["version"].(type) {
	case int64:
		version = v
	case float64:
		version = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		version = parsed
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		version = parsed
	case nil:
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	default:
		return nil, fmt.Errorf("unexpected type for version at %s: %T", path, v)
	}

	return &VaultSecret{Data: data, Version: version}, nil
}

// String returns a string field of the secret
func (s *VaultSecret) String(key string) (string, error) {
	value, ok := s.Data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found in secret", key)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string", key)
	}
	return str, nil
}

// GetStringSecret retrieves a string value from a Vault secret
func (vc *VaultClient) GetStringSecret(path, key string) (string, error) {
	secret, err := vc.GetSecretV2(path)
	if err != nil {
		return "", err
	}
	value, err := secret.String(key)
	if err != nil {
		return "", fmt.Errorf("%w in %s", err, path)
	}
	vc.logger.Debug("String secret retrieved from Vault", "path", path, "key", key, "masked_value", MaskSecret(value))
	return value, nil
}

// MaskSecret keeps the first and last four characters of long secrets
func MaskSecret(s string) string {
	switch {
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	case len(s) > 0:
		return "****"
	}
	return ""
}

// ApplyVaultSecrets loads secrets from Vault and applies them to the config.
// It returns the client so callers can watch secrets for rotation.
func ApplyVaultSecrets(config *Config, logger *errors.Logger) (*VaultClient, error) {
	if !config.Vault.Enabled {
		logger.Debug("Vault integration disabled, skipping secret loading")
		return nil, nil
	}

	logger.Info("Loading secrets from Vault",
		"api_keys_path", config.Vault.Secrets.APIKeys,
		"provider_key_path", config.Vault.Secrets.ProviderKey,
		"tls_certs_path", config.Vault.Secrets.TLSCerts)

	client, err := NewVaultClient(config.Vault, logger)
	if err != nil {
		return nil, err
	}

	if path := config.Vault.Secrets.APIKeys; path != "" {
		secret, err := client.GetSecretV2(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load API keys from vault: %w", err)
		}
		keys, err := APIKeysFromSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to load API keys from vault: %w", err)
		}
		if len(keys) > 0 {
			config.Server.APIKeys = keys
			logger.Info("API keys loaded from Vault", "count", len(keys))
		} else {
			logger.Warn("No API keys found in Vault", "path", path)
		}
	}

	if path := config.Vault.Secrets.ProviderKey; path != "" {
		key, err := client.GetStringSecret(path, "api_key")
		if err != nil {
			return nil, fmt.Errorf("failed to load provider API key from vault: %w", err)
		}
		if key != "" {
			applyProviderKeyToConfig(config, key)
			logger.Info("Provider API key loaded from Vault and applied to all AI configurations")
		} else {
			logger.Warn("Empty provider API key found in Vault", "path", path)
		}
	}

	if path := config.Vault.Secrets.TLSCerts; path != "" {
		secret, err := client.GetSecretV2(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificates from vault: %w", err)
		}
		count, err := applyTLSSecret(config, secret)
		if err != nil {
			return nil, err
		}
		logger.Info("TLS certificates loaded from Vault", "certificates_loaded", count)
	}

	logger.Info("Successfully completed applying secrets from Vault")
	return client, nil
}

// APIKeysFromSecret splits the comma-separated "keys" field
func APIKeysFromSecret(secret *VaultSecret) ([]string, error) {
	value, err := secret.String("keys")
	if err != nil {
		return nil, err
	}
	return splitAndTrim(value), nil
}

// applyProviderKeyToConfig applies the provider key globally and to every
// operation that has no key of its own
func applyProviderKeyToConfig(config *Config, key string) {
	config.AI.APIKey = key
	for _, op := range Operations {
		if opCfg := config.AI.operation(op); opCfg.APIKey == "" {
			opCfg.APIKey = key
		}
	}
}

// applyTLSSecret copies PEM content from the secret into the TLS config
func applyTLSSecret(config *Config, secret *VaultSecret) (int, error) {
	for _, field := range []string{"cert_file", "key_file", "ca_file"} {
		if _, ok := secret.Data[field]; ok {
			return 0, fmt.Errorf("vault TLS configuration error: '%s' field is no longer supported. Store certificate content in '%s' field instead",
				field, strings.TrimSuffix(field, "_file"))
		}
	}

	count := 0
	targets := map[string]*string{
		"cert": &config.Server.TLS.CertContent,
		"key":  &config.Server.TLS.KeyContent,
		"ca":   &config.Server.TLS.CAContent,
	}
	for field, target := range targets {
		if content, ok := secret.Data[field].(string); ok && content != "" {
			*target = content
			count++
		}
	}
	return count, nil
}
