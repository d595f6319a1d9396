package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/studentid/walletpass/internal/pkpass"
)

// DeliveryMode selects how the pass reaches the recipient.
type DeliveryMode string

const (
	// DeliverLink sends an HTML email containing the signed download URL.
	DeliverLink DeliveryMode = "link"

	// DeliverAttachment sends a plain text email with the .pkpass file attached.
	DeliverAttachment DeliveryMode = "attachment"
)

const (
	attachmentFileName = "card.pkpass"
	attachmentBody     = "Attached is your Apple Wallet ID Card. Please open this email on your iPhone and tap the attachment to add it to your Apple Wallet."
)

// ErrDeliveryFailed is returned when the mail provider does not accept the message.
var ErrDeliveryFailed = errors.New("email delivery failed")

//go:embed templates/pass_email.html
var templateFS embed.FS

var passEmailTemplate = template.Must(template.ParseFS(templateFS, "templates/pass_email.html"))

// PassEmail is one notification to a pass recipient.
type PassEmail struct {
	To   string
	Name string

	// DownloadURL is used in link mode. It may be empty when the signed URL could not be generated.
	DownloadURL string

	// Pass is used in attachment mode.
	Pass []byte
}

// Mailer delivers issued passes to recipients.
type Mailer interface {
	// SendPassEmail returns ErrDeliveryFailed (wrapped) when the provider rejects the message.
	// Provider error details are logged, never returned to the HTTP caller.
	SendPassEmail(ctx context.Context, email PassEmail) error
}

// SendGridOptions configures SendGridMailer.
type SendGridOptions struct {
	APIKey  string
	Host    string
	From    string
	Subject string
	Mode    DeliveryMode
}

// SendGridMailer sends pass emails with the SendGrid v3 mail send API.
type SendGridMailer struct {
	opts   SendGridOptions
	from   *mail.Email
	logger *slog.Logger
}

func NewSendGridMailer(opts SendGridOptions, logger *slog.Logger) (*SendGridMailer, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("sendgrid API key is required")
	}
	if opts.From == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if opts.Host == "" {
		opts.Host = "https://api.sendgrid.com"
	}
	if opts.Mode == "" {
		opts.Mode = DeliverLink
	}
	if opts.Mode != DeliverLink && opts.Mode != DeliverAttachment {
		return nil, fmt.Errorf("unsupported delivery mode: %s", opts.Mode)
	}

	return &SendGridMailer{
		opts:   opts,
		from:   mail.NewEmail("", opts.From),
		logger: logger,
	}, nil
}

func (m *SendGridMailer) SendPassEmail(ctx context.Context, email PassEmail) error {
	message, err := m.buildMessage(email)
	if err != nil {
		return err
	}

	request := sendgrid.GetRequest(m.opts.APIKey, "/v3/mail/send", m.opts.Host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		m.logger.Error("email send failed",
			slog.String("to", email.To),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		m.logger.Error("email rejected by provider",
			slog.String("to", email.To),
			slog.Int("status_code", response.StatusCode),
			slog.String("response_body", response.Body),
		)
		return fmt.Errorf("%w: provider returned status %d", ErrDeliveryFailed, response.StatusCode)
	}

	m.logger.Info("email sent",
		slog.String("to", email.To),
		slog.String("mode", string(m.opts.Mode)),
	)
	return nil
}

func (m *SendGridMailer) buildMessage(email PassEmail) (*mail.SGMailV3, error) {
	to := mail.NewEmail(email.Name, email.To)

	if m.opts.Mode == DeliverAttachment {
		if len(email.Pass) == 0 {
			return nil, fmt.Errorf("no pass to attach")
		}
		message := mail.NewSingleEmail(m.from, m.opts.Subject, to, attachmentBody, "")

		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(email.Pass))
		attachment.SetType(pkpass.ContentType)
		attachment.SetFilename(attachmentFileName)
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
		return message, nil
	}

	html, err := RenderPassEmail(m.opts.Subject, email)
	if err != nil {
		return nil, err
	}
	return mail.NewSingleEmail(m.from, m.opts.Subject, to, "", html), nil
}

// RenderPassEmail renders the HTML body used in link mode.
func RenderPassEmail(subject string, email PassEmail) (string, error) {
	var buf bytes.Buffer
	err := passEmailTemplate.Execute(&buf, struct {
		Subject     string
		Name        string
		DownloadURL string
	}{
		Subject:     subject,
		Name:        email.Name,
		DownloadURL: email.DownloadURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render pass email: %w", err)
	}
	return buf.String(), nil
}

// LogMailer logs the email instead of sending it (dev/test).
type LogMailer struct {
	Mode   DeliveryMode
	Logger *slog.Logger
}

func (m *LogMailer) SendPassEmail(ctx context.Context, email PassEmail) error {
	attrs := []any{
		slog.String("to", email.To),
		slog.String("mode", string(m.Mode)),
	}
	if m.Mode == DeliverAttachment {
		attrs = append(attrs, slog.Int("attachment_bytes", len(email.Pass)))
	} else {
		attrs = append(attrs, slog.String("download_url", email.DownloadURL))
	}
	m.Logger.InfoContext(ctx, "pass email (not sent)", attrs...)
	return nil
}
