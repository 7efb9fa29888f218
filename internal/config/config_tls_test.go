package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTLSConfig(t *testing.T) {
	tests := []struct {
		name     string
		tls      TLSConfig
		errorMsg string
	}{
		{name: "disabled", tls: TLSConfig{Mode: "disabled"}},
		{name: "server with files", tls: TLSConfig{Mode: "server", CertFile: "c.pem", KeyFile: "k.pem"}},
		{name: "server with content", tls: TLSConfig{Mode: "server", CertContent: "cert", KeyContent: "key"}},
		{name: "mutual", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem", CAFile: "ca.pem", ClientAuthPolicy: "verify"}},
		{name: "invalid mode", tls: TLSConfig{Mode: "sometimes"}, errorMsg: "invalid TLS mode"},
		{name: "missing key", tls: TLSConfig{Mode: "server", CertFile: "c.pem"}, errorMsg: "TLS key is required"},
		{name: "duplicate cert", tls: TLSConfig{Mode: "server", CertFile: "c.pem", CertContent: "cert", KeyFile: "k.pem"}, errorMsg: "cannot specify both"},
		{name: "mutual without CA", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem"}, errorMsg: "CA certificate"},
		{name: "bad policy", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem", CAFile: "ca.pem", ClientAuthPolicy: "maybe"}, errorMsg: "clientAuthPolicy"},
		{name: "bad version", tls: TLSConfig{Mode: "server", CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.0"}, errorMsg: "minVersion"},
		{name: "watch needs files", tls: TLSConfig{Mode: "server", CertContent: "cert", KeyContent: "key", WatchFiles: true}, errorMsg: "watchFiles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{TLS: tt.tls}}
			err := cfg.ValidateTLSConfig()

			if tt.errorMsg != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
