package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentid/walletpass/internal/config"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSendGrid records mail send requests
type fakeSendGrid struct {
	mu       sync.Mutex
	status   int
	requests []sendGridRequest
}

type sendGridRequest struct {
	Path          string
	Authorization string
	Body          sendGridMessage
}

type sendGridMessage struct {
	From struct {
		Email string `json:"email"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	Attachments []struct {
		Content     string `json:"content"`
		Type        string `json:"type"`
		Filename    string `json:"filename"`
		Disposition string `json:"disposition"`
	} `json:"attachments"`
}

func (f *fakeSendGrid) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg sendGridMessage
	_ = json.NewDecoder(r.Body).Decode(&msg)

	f.mu.Lock()
	f.requests = append(f.requests, sendGridRequest{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          msg,
	})
	status := f.status
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = w.Write([]byte(`{"errors":[{"message":"The from address does not match a verified Sender Identity"}]}`))
	}
}

func (f *fakeSendGrid) recorded() []sendGridRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendGridRequest(nil), f.requests...)
}

func newSendGrid(t *testing.T, mode DeliveryMode) (*SendGridMailer, *fakeSendGrid) {
	t.Helper()
	fake := &fakeSendGrid{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	mailer, err := NewSendGridMailer(SendGridOptions{
		APIKey:  "SG.test-key",
		Host:    srv.URL,
		From:    "idcards@example.edu",
		Subject: "Your Apple Wallet Strake Jesuit ID Card",
		Mode:    mode,
	}, discardLogger)
	require.NoError(t, err)
	return mailer, fake
}

func TestSendGridMailerLinkMode(t *testing.T) {
	mailer, fake := newSendGrid(t, DeliverLink)

	err := mailer.SendPassEmail(context.Background(), PassEmail{
		To:          "jane@example.edu",
		Name:        "Jane Doe",
		DownloadURL: "https://storage.example.com/2023-2024/SJ-2023-2024-12345.pkpass?sig=abc",
	})
	require.NoError(t, err)

	requests := fake.recorded()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "/v3/mail/send", req.Path)
	assert.Equal(t, "Bearer SG.test-key", req.Authorization)
	assert.Equal(t, "idcards@example.edu", req.Body.From.Email)
	assert.Equal(t, "Your Apple Wallet Strake Jesuit ID Card", req.Body.Subject)
	require.Len(t, req.Body.Personalizations, 1)
	assert.Equal(t, "jane@example.edu", req.Body.Personalizations[0].To[0].Email)
	assert.Empty(t, req.Body.Attachments)

	var html string
	for _, c := range req.Body.Content {
		if c.Type == "text/html" {
			html = c.Value
		}
	}
	assert.Contains(t, html, `href="https://storage.example.com/2023-2024/SJ-2023-2024-12345.pkpass?sig=abc"`)
	assert.Contains(t, html, "Hi Jane Doe")
}

func TestSendGridMailerAttachmentMode(t *testing.T) {
	mailer, fake := newSendGrid(t, DeliverAttachment)
	pass := []byte("PK\x03\x04 pkpass bytes")

	err := mailer.SendPassEmail(context.Background(), PassEmail{To: "jane@example.edu", Pass: pass})
	require.NoError(t, err)

	requests := fake.recorded()
	require.Len(t, requests, 1)
	body := requests[0].Body

	require.Len(t, body.Attachments, 1)
	attachment := body.Attachments[0]
	assert.Equal(t, "card.pkpass", attachment.Filename)
	assert.Equal(t, "application/vnd.apple.pkpass", attachment.Type)
	assert.Equal(t, "attachment", attachment.Disposition)

	decoded, err := base64.StdEncoding.DecodeString(attachment.Content)
	require.NoError(t, err)
	assert.Equal(t, pass, decoded)

	require.NotEmpty(t, body.Content)
	assert.Equal(t, "text/plain", body.Content[0].Type)
	assert.Contains(t, body.Content[0].Value, "Attached is your Apple Wallet ID Card")

	err = mailer.SendPassEmail(context.Background(), PassEmail{To: "jane@example.edu"})
	assert.Error(t, err, "attachment mode without a pass")
}

func TestSendGridMailerRejected(t *testing.T) {
	mailer, fake := newSendGrid(t, DeliverLink)
	fake.mu.Lock()
	fake.status = http.StatusForbidden
	fake.mu.Unlock()

	err := mailer.SendPassEmail(context.Background(), PassEmail{To: "jane@example.edu", DownloadURL: "https://x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	assert.NotContains(t, err.Error(), "verified Sender Identity", "provider body must only be logged")
}

func TestSendGridMailerUnreachable(t *testing.T) {
	mailer, err := NewSendGridMailer(SendGridOptions{
		APIKey: "SG.test-key",
		Host:   "http://127.0.0.1:1",
		From:   "idcards@example.edu",
	}, discardLogger)
	require.NoError(t, err)

	err = mailer.SendPassEmail(context.Background(), PassEmail{To: "jane@example.edu"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNewSendGridMailerValidation(t *testing.T) {
	_, err := NewSendGridMailer(SendGridOptions{From: "a@example.edu"}, discardLogger)
	assert.Error(t, err)

	_, err = NewSendGridMailer(SendGridOptions{APIKey: "k"}, discardLogger)
	assert.Error(t, err)

	_, err = NewSendGridMailer(SendGridOptions{APIKey: "k", From: "a@example.edu", Mode: "carrier-pigeon"}, discardLogger)
	assert.Error(t, err)
}

func TestRenderPassEmailEscapesName(t *testing.T) {
	html, err := RenderPassEmail("subject", PassEmail{Name: "<script>alert(1)</script>", DownloadURL: "https://x"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestLogMailer(t *testing.T) {
	var buf strings.Builder
	mailer := &LogMailer{Mode: DeliverLink, Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, mailer.SendPassEmail(context.Background(), PassEmail{To: "jane@example.edu", DownloadURL: "https://dl"}))
	assert.Contains(t, buf.String(), "to=jane@example.edu")
	assert.Contains(t, buf.String(), "download_url=https://dl")
}

func TestHTTPImageFetcherRemote(t *testing.T) {
	photo := []byte("\x89PNG fake photo bytes")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/x.png":
			_, _ = w.Write(photo)
		case "/big.png":
			_, _ = w.Write(make([]byte, 1024))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	fetcher := &HTTPImageFetcher{Client: srv.Client(), MaxBytes: 512}
	ctx := context.Background()

	data, err := fetcher.FetchImage(ctx, srv.URL+"/x.png")
	require.NoError(t, err)
	assert.Equal(t, photo, data)

	_, err = fetcher.FetchImage(ctx, srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "status 404")

	_, err = fetcher.FetchImage(ctx, srv.URL+"/big.png")
	assert.ErrorIs(t, err, ErrImageTooLarge)

	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPImageFetcherBase64(t *testing.T) {
	// a client that fails every request proves no network call is made
	fetcher := &HTTPImageFetcher{
		Client: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Fatal("unexpected network call")
			return nil, nil
		})},
		MaxBytes: 1024,
	}
	ctx := context.Background()
	photo := []byte("raw photo bytes!")

	tests := []struct {
		name  string
		input string
	}{
		{"padded", base64.StdEncoding.EncodeToString(photo)},
		{"unpadded", base64.RawStdEncoding.EncodeToString(photo)},
		{"data uri", "data:image/png;base64," + base64.StdEncoding.EncodeToString(photo)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := fetcher.FetchImage(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, photo, data)
		})
	}

	t.Run("url safe alphabet", func(t *testing.T) {
		// 0xfb 0xef 0xbe encodes to "++++" in the standard alphabet and "----" in the URL-safe one
		binary := []byte{0xfb, 0xef, 0xbe, 0xff, 0xfe}
		for _, input := range []string{
			base64.URLEncoding.EncodeToString(binary),
			"data:image/png;base64," + base64.RawURLEncoding.EncodeToString(binary),
		} {
			data, err := fetcher.FetchImage(ctx, input)
			require.NoError(t, err, input)
			assert.Equal(t, binary, data)
		}
	})

	_, err := fetcher.FetchImage(ctx, "not base64 at all!")
	assert.Error(t, err)

	_, err = fetcher.FetchImage(ctx, "")
	assert.Error(t, err)

	_, err = fetcher.FetchImage(ctx, "data:image/png,rawbytes")
	assert.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestNewServices(t *testing.T) {
	cfg := &config.ServerEnvironment{
		Mailer:        "log",
		EmailDelivery: "link",
		MaxImageBytes: 1024,
	}
	s, err := NewServices(cfg, discardLogger)
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, s.Mailer)
	assert.IsType(t, &HTTPImageFetcher{}, s.Images)

	cfg.Mailer = "sendgrid"
	cfg.SendGridAPIKey = "SG.key"
	cfg.EmailFrom = "idcards@example.edu"
	s, err = NewServices(cfg, discardLogger)
	require.NoError(t, err)
	assert.IsType(t, &SendGridMailer{}, s.Mailer)

	cfg.Mailer = "smtp"
	_, err = NewServices(cfg, discardLogger)
	assert.Error(t, err)
}
