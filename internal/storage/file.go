package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// DownloadPathPrefix is the route prefix served by the download handler for file backed objects
const DownloadPathPrefix = "/downloads/"

// ErrInvalidToken is returned when a download token does not verify, has expired or names another object
var ErrInvalidToken = errors.New("invalid download token")

// FileBackend stores objects on the local filesystem.
//
// Signed read links point at the server's download route and carry an HS256 JWS
// naming the object and its expiry.
type FileBackend struct {
	baseDir       string
	publicBaseURL string
	secret        []byte
	log           *slog.Logger
	now           func() time.Time
}

type downloadClaims struct {
	Path      string `json:"path"`
	ExpiresAt int64  `json:"exp"`
	ID        string `json:"jti"`
}

// NewFileBackend creates a file storage backend rooted at baseDir.
func NewFileBackend(baseDir, publicBaseURL string, secret []byte, log *slog.Logger) (*FileBackend, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("download token secret must be at least 32 bytes")
	}
	if _, err := url.ParseRequestURI(publicBaseURL); err != nil {
		return nil, fmt.Errorf("invalid public base url: %w", err)
	}

	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileBackend{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		secret:        secret,
		log:           log,
		now:           time.Now,
	}, nil
}

func (b *FileBackend) Name() string { return "file://" + b.baseDir }

// Put writes data to baseDir/objectPath. The write goes through a temporary file so
// concurrent readers never observe a partial archive.
func (b *FileBackend) Put(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if err := ValidateObjectPath(objectPath); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	root, err := os.OpenRoot(b.baseDir)
	if err != nil {
		return fmt.Errorf("failed to open storage directory: %w", err)
	}
	defer root.Close()

	if dir := path.Dir(objectPath); dir != "." {
		if err := root.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp := objectPath + ".tmp-" + uuid.NewString()
	if err := root.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := root.Rename(tmp, objectPath); err != nil {
		_ = root.Remove(tmp)
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	b.log.Debug("Stored object on disk",
		slog.String("path", objectPath),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)))
	return nil
}

// SignedReadURL returns a download link carrying a signed token for objectPath.
func (b *FileBackend) SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if err := ValidateObjectPath(objectPath); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(downloadClaims{
		Path:      objectPath,
		ExpiresAt: b.now().Add(ttl).Unix(),
		ID:        uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal download claims: %w", err)
	}

	token, err := jws.Sign(payload, jws.WithKey(jwa.HS256(), b.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}

	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return b.publicBaseURL + DownloadPathPrefix + strings.Join(segments, "/") + "?token=" + url.QueryEscape(string(token)), nil
}

// VerifyDownloadToken checks that token was issued by this backend for objectPath and has not expired.
func (b *FileBackend) VerifyDownloadToken(token, objectPath string) error {
	payload, err := jws.Verify([]byte(token), jws.WithKey(jwa.HS256(), b.secret))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims downloadClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}
	if claims.Path != objectPath {
		return fmt.Errorf("%w: token is for a different object", ErrInvalidToken)
	}
	if b.now().Unix() >= claims.ExpiresAt {
		return fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	return nil
}

// Open opens a stored object for reading. The caller closes the file.
func (b *FileBackend) Open(objectPath string) (*os.File, error) {
	if err := ValidateObjectPath(objectPath); err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage directory: %w", err)
	}
	defer root.Close()

	f, err := root.Open(filepath.FromSlash(objectPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", objectPath, err)
	}
	return f, nil
}

// Available checks that the storage directory exists.
func (b *FileBackend) Available(ctx context.Context) error {
	info, err := os.Stat(b.baseDir)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", b.baseDir)
	}
	return nil
}
