package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studentid/walletpass/internal/config"
	"github.com/studentid/walletpass/internal/docstore"
	"github.com/studentid/walletpass/internal/issuance"
	"github.com/studentid/walletpass/internal/services"
	"github.com/studentid/walletpass/internal/storage"
)

// NewFromConfig constructs every collaborator selected by cfg and returns a server ready to Start.
// The pass model and signing certificates are loaded once here; a bad certificate fails startup.
func NewFromConfig(ctx context.Context, cfg *config.ServerEnvironment, logger *slog.Logger) (*Server, error) {
	builder, err := issuance.LoadTemplateBuilder(
		cfg.PassModelDir,
		cfg.PassWWDRCertPath,
		cfg.PassSignerCertPath,
		cfg.PassSignerKeyPath,
		cfg.PassSignerKeyPassphrase,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load pass model or signing identity: %w", err)
	}

	objects, err := storage.NewObjectStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	svc, err := services.NewServices(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create services: %w", err)
	}

	documents, err := docstore.NewDocumentStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}

	passHandler, err := issuance.NewHandler(issuance.Dependencies{
		Builder: builder,
		Images:  svc.Images,
		Store:   objects,
		Users:   docstore.NewUserRecords(documents),
		Mailer:  svc.Mailer,
	}, issuance.Options{
		SerialPrefix:      cfg.SerialPrefix,
		SignedURLTTL:      cfg.SignedURLTTL,
		LegacyStatusCodes: cfg.LegacyStatusCodes,
	})
	if err != nil {
		_ = documents.Close()
		return nil, fmt.Errorf("failed to create issuance handler: %w", err)
	}

	return NewServer(cfg, logger, Dependencies{
		Documents: documents,
		Objects:   objects,
		Issuance:  passHandler,
	})
}
