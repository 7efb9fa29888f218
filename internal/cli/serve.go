package cli

import (
	"context"
	"fmt"
	"time"

	"resumelens/internal/ai"
	"resumelens/internal/config"
	"resumelens/internal/keyexchange"
	"resumelens/internal/observability"
	"resumelens/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for streaming resume analysis",
	Long: `Start an HTTP server that streams resume analysis as Server-Sent Events.

Main endpoints:
- POST /deepseek/analyze-resume: weaknesses and score of a resume
- POST /deepseek/analyze/deep-insights: timeline, skill, metric and job match findings
- POST /deepseek/format/hierarchy: restructure a document as markdown
- GET /crypto/deepseek-public-key: key for encrypting caller API keys
- POST /file/parse: extract text from an uploaded document
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

// serveFlags maps flags to the config keys they override
var serveFlags = map[string]string{
	"server.port":         "port",
	"server.host":         "host",
	"server.tls.mode":     "tls-mode",
	"server.tls.certFile": "cert-file",
	"server.tls.keyFile":  "key-file",
	"server.tls.caFile":   "ca-file",
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
}

// applyServeFlags copies explicitly set flags over the loaded config
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	for key, flagName := range serveFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	targets := map[string]*string{
		"server.port":         &cfg.Server.Port,
		"server.host":         &cfg.Server.Host,
		"server.tls.mode":     &cfg.Server.TLS.Mode,
		"server.tls.certFile": &cfg.Server.TLS.CertFile,
		"server.tls.keyFile":  &cfg.Server.TLS.KeyFile,
		"server.tls.caFile":   &cfg.Server.TLS.CAFile,
	}
	for key, target := range targets {
		if cmd.Flags().Changed(serveFlags[key]) {
			*target = v.GetString(key)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	vaultClient, err := config.ApplyVaultSecrets(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load secrets from vault: %w", err)
	}

	// Validate TLS configuration after applying overrides and Vault content
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	prompts, err := cfg.LoadPrompts()
	if err != nil {
		return fmt.Errorf("failed to load prompt files: %w", err)
	}

	keys, err := keyexchange.Generate()
	if err != nil {
		return err
	}

	om, err := observability.NewManager(observability.SettingsFromConfig(cfg, Version))
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := om.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to shutdown observability")
		}
	}()

	opts := server.Options{
		Version:       Version,
		Factory:       ai.NewFactory(cfg, ai.NewPrompts(prompts), nil, om.Metrics(), logger),
		Prompts:       prompts,
		Keys:          keys,
		Observability: om,
		Logger:        logger,
	}
	if vaultClient != nil {
		opts.Vault = vaultClient
	}

	s, err := server.NewServer(cfg, opts)
	if err != nil {
		return err
	}
	return s.Start(ctx)
}
