package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/studentid/walletpass/internal/config"
)

// Services aggregates the external integrations used by the issuance handler.
type Services struct {
	Mailer Mailer
	Images ImageFetcher
}

// NewServices creates service implementations based on configuration.
// This is the single entry point for initializing all external service integrations.
func NewServices(cfg *config.ServerEnvironment, logger *slog.Logger) (*Services, error) {
	s := &Services{}

	if mailer, err := NewMailer(cfg, logger); err != nil {
		return nil, err
	} else {
		s.Mailer = mailer
	}

	s.Images = &HTTPImageFetcher{
		Client:   &http.Client{Timeout: cfg.ImageFetchTimeout},
		MaxBytes: cfg.MaxImageBytes,
	}
	return s, nil
}

// NewMailer creates the Mailer selected by MAILER.
func NewMailer(cfg *config.ServerEnvironment, logger *slog.Logger) (Mailer, error) {
	mode := DeliveryMode(cfg.EmailDelivery)

	switch cfg.Mailer {
	case "sendgrid":
		return NewSendGridMailer(SendGridOptions{
			APIKey:  cfg.SendGridAPIKey,
			Host:    cfg.SendGridHost,
			From:    cfg.EmailFrom,
			Subject: cfg.EmailSubject,
			Mode:    mode,
		}, logger)

	case "log":
		return &LogMailer{Mode: mode, Logger: logger}, nil

	default:
		return nil, fmt.Errorf("unsupported mailer: %s", cfg.Mailer)
	}
}
