package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrImageTooLarge is returned when the photo exceeds the configured size cap.
var ErrImageTooLarge = errors.New("image exceeds maximum size")

// ImageFetcher resolves the imageURL of a pass request to raw image bytes.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPImageFetcher downloads http(s) URLs and base64 decodes everything else.
type HTTPImageFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func (f *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if IsRemoteImage(imageURL) {
		data, err = f.download(ctx, imageURL)
	} else {
		data, err = DecodeBase64Image(imageURL)
	}
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

func (f *HTTPImageFetcher) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	// #nosec G107 -- the photo location is supplied by the caller; only http(s) URLs reach this point
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image server returned status %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// IsRemoteImage reports whether imageURL is fetched over HTTP rather than decoded.
func IsRemoteImage(imageURL string) bool {
	return strings.HasPrefix(imageURL, "http://") || strings.HasPrefix(imageURL, "https://")
}

// DecodeBase64Image decodes a standard or URL-safe base64 payload, optionally wrapped in a
// data URI (data:image/png;base64,...). Padding is optional.
func DecodeBase64Image(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		_, payload, ok := strings.Cut(encoded, ";base64,")
		if !ok {
			return nil, fmt.Errorf("data URI is not base64 encoded")
		}
		encoded = payload
	}

	encoded = strings.TrimSpace(encoded)
	encoded = strings.TrimRight(encoded, "=")

	data, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return data, nil
}
