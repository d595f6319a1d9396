package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studentid/walletpass/internal/config"
	"github.com/studentid/walletpass/internal/logger"
	"github.com/studentid/walletpass/internal/server"
	"github.com/studentid/walletpass/internal/version"
)

//	@title			pass-server
//	@description	pass-server issues Apple Wallet student ID passes. A submission of student details and a photo
//	@description	is turned into a signed .pkpass archive, stored, recorded against the recipient's email and
//	@description	delivered by email as a 24 hour download link.
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description
//	@description	## Status codes of the issuance endpoint
//	@description	The issuance endpoint keeps the status codes of the service it replaces: storage failures are
//	@description	`500`, email failures `400`, and other failures after validation (photo download, signing) are
//	@description	`200` with the error message. Set LEGACY_STATUS_CODES=false to report those as `500`.
//	@description
//	@description	## Request Limits
//	@description	All endpoints are protected by:
//	@description	- **Rate limiting**: Configurable requests per second (see env vars) - default 100 rps (set to 0 to disable)
//	@description	- **Request size limits**: Configurable (see env vars) - default 10MB to allow base64 photos
//	@description
//	@description	## Origins
//	@description	The issuance endpoints only accept browser requests from the origins listed in ALLOWED_ORIGINS.
//	@license.name	MIT

//	@servers.url			https://passes.example.edu
//	@servers.description	Production server
//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Passes
//	@tag.description	Pass issuance and download

//	@tag.name			Common
//	@tag.description	Server API endpoints (health, readiness, version, drain)

func main() {
	cmd := &cobra.Command{
		Use:   "pass-server",
		Short: "Apple Wallet student ID pass server",
		Long:  `pass-server issues signed Apple Wallet student ID passes and emails them to students`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.Any("ALLOWED_ORIGINS", cfg.AllowedOrigins),
		slog.String("PASS_MODEL_DIR", cfg.PassModelDir),
		slog.String("STORAGE_BACKEND", cfg.StorageBackend),
		slog.String("DOCUMENT_STORE", cfg.DocumentStore),
		slog.String("MAILER", cfg.Mailer),
		slog.String("EMAIL_DELIVERY", cfg.EmailDelivery),
		slog.Bool("LEGACY_STATUS_CODES", cfg.LegacyStatusCodes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	server, err := server.NewFromConfig(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer server.Shutdown()

	if err := server.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
