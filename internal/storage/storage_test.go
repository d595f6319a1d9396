package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestValidateObjectPath(t *testing.T) {
	valid := []string{"2023-2024/SJ-2023-2024-12345.pkpass", "card.pkpass"}
	invalid := []string{"", "/abs/path.pkpass", "../escape.pkpass", "a/../../b", "a//b", "a\\b", "..", "./a"}

	for _, p := range valid {
		assert.NoError(t, ValidateObjectPath(p), p)
	}
	for _, p := range invalid {
		assert.Error(t, ValidateObjectPath(p), p)
	}
}

func newFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(t.TempDir(), "https://passes.example.edu/", []byte(strings.Repeat("k", 32)), testLogger)
	require.NoError(t, err)
	return b
}

func TestFileBackendPutAndOpen(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()
	objectPath := "2023-2024/SJ-2023-2024-12345.pkpass"

	require.NoError(t, b.Put(ctx, objectPath, []byte("first"), "application/vnd.apple.pkpass"))
	// a second put with the same path overwrites
	require.NoError(t, b.Put(ctx, objectPath, []byte("second"), "application/vnd.apple.pkpass"))

	f, err := b.Open(objectPath)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(b.baseDir, "2023-2024"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	_, err = b.Open("2023-2024/missing.pkpass")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, b.Put(ctx, "../outside.pkpass", []byte("x"), "text/plain"))
	assert.NoError(t, b.Available(ctx))
}

func TestFileBackendSignedURL(t *testing.T) {
	b := newFileBackend(t)
	objectPath := "2023-2024/SJ-2023-2024-12345.pkpass"

	link, err := b.SignedReadURL(context.Background(), objectPath, 24*time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "passes.example.edu", u.Host)
	assert.Equal(t, DownloadPathPrefix+objectPath, u.Path)

	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, b.VerifyDownloadToken(token, objectPath))
	})

	t.Run("other object", func(t *testing.T) {
		assert.ErrorIs(t, b.VerifyDownloadToken(token, "2023-2024/other.pkpass"), ErrInvalidToken)
	})

	t.Run("tampered", func(t *testing.T) {
		assert.ErrorIs(t, b.VerifyDownloadToken(token+"x", objectPath), ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewFileBackend(t.TempDir(), "https://passes.example.edu", []byte(strings.Repeat("z", 32)), testLogger)
		require.NoError(t, err)
		assert.ErrorIs(t, other.VerifyDownloadToken(token, objectPath), ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		b.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
		defer func() { b.now = time.Now }()
		assert.ErrorIs(t, b.VerifyDownloadToken(token, objectPath), ErrInvalidToken)
	})
}

func TestNewFileBackendRejectsShortSecret(t *testing.T) {
	_, err := NewFileBackend(t.TempDir(), "https://passes.example.edu", []byte("short"), testLogger)
	assert.Error(t, err)
}

// fakeS3 records requests made by the aws sdk
type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        string(body),
	})
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
		return
	}
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeS3) setStatus(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func newS3Backend(t *testing.T, fake *fakeS3) *S3Backend {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := NewS3Backend(S3Options{
		Bucket:         "passes",
		Prefix:         "issued/",
		Region:         "us-east-1",
		Endpoint:       srv.URL,
		AccessKey:      "AKIDEXAMPLE",
		SecretKey:      "secret",
		ForcePathStyle: true,
	}, testLogger)
	require.NoError(t, err)
	return b
}

func TestS3BackendPut(t *testing.T) {
	fake := &fakeS3{}
	b := newS3Backend(t, fake)

	err := b.Put(context.Background(), "2023-2024/SJ-2023-2024-12345.pkpass", []byte("pkpass-bytes"), "application/vnd.apple.pkpass")
	require.NoError(t, err)

	requests := fake.recorded()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/passes/issued/2023-2024/SJ-2023-2024-12345.pkpass", req.path)
	assert.Equal(t, "application/vnd.apple.pkpass", req.contentType)
	assert.Equal(t, "pkpass-bytes", req.body)
}

func TestS3BackendPutFailure(t *testing.T) {
	fake := &fakeS3{status: http.StatusForbidden}
	b := newS3Backend(t, fake)

	err := b.Put(context.Background(), "2023-2024/SJ-1.pkpass", []byte("x"), "application/vnd.apple.pkpass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestS3BackendSignedReadURL(t *testing.T) {
	fake := &fakeS3{}
	b := newS3Backend(t, fake)

	link, err := b.SignedReadURL(context.Background(), "2023-2024/SJ-2023-2024-12345.pkpass", 24*time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/passes/issued/2023-2024/SJ-2023-2024-12345.pkpass", u.Path)
	assert.Equal(t, "86400", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	// presigning is local
	assert.Empty(t, fake.recorded())
}

func TestS3BackendAvailable(t *testing.T) {
	fake := &fakeS3{}
	b := newS3Backend(t, fake)
	require.NoError(t, b.Available(context.Background()))
	requests := fake.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodHead, requests[0].method)

	fake.setStatus(http.StatusNotFound)
	err := b.Available(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
