package cli

import (
	"fmt"

	"resumecritic/internal/ai"
	"resumecritic/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resume analyzer web server",
	Long: `Start an HTTP server with the upload page and the analysis API.

Endpoints:
- GET  /                    Upload page
- POST /api/analyze         Multipart upload (field "resume"), returns {score, positives, improvements}
- GET  /sample_resume.docx  Sample resume
- GET  /health              Health check, ?deep=true also checks the model
- GET  /stats               Circuit breaker and pacer statistics

TLS:
- Use --tls-mode server with --cert-file and --key-file to serve HTTPS`,
	RunE: runServe,
}

// serveFlags binds serve flags to viper keys
var serveFlags = viper.New()

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled or server (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")

	bindFlag := func(key, flagName string) {
		if err := serveFlags.BindPFlag(key, serveCmd.Flags().Lookup(flagName)); err != nil {
			panic(err)
		}
	}

	bindFlag("server.port", "port")
	bindFlag("server.host", "host")
	bindFlag("server.tls.mode", "tls-mode")
	bindFlag("server.tls.certFile", "cert-file")
	bindFlag("server.tls.keyFile", "key-file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	// Only flags the user actually set override the loaded config.
	override := func(key string, dst *string) {
		if serveFlags.IsSet(key) {
			*dst = serveFlags.GetString(key)
		}
	}
	override("server.port", &cfg.Server.Port)
	override("server.host", &cfg.Server.Host)
	override("server.tls.mode", &cfg.Server.TLS.Mode)
	override("server.tls.certFile", &cfg.Server.TLS.CertFile)
	override("server.tls.keyFile", &cfg.Server.TLS.KeyFile)

	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	aiService, err := ai.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() { _ = aiService.Close() }()

	srv, err := server.NewServer(cfg, aiService, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}
