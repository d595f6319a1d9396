package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// ObjectStore stores pass archives and issues time limited read links for them.
type ObjectStore interface {
	// Put stores data at objectPath, overwriting any existing object.
	Put(ctx context.Context, objectPath string, data []byte, contentType string) error

	// SignedReadURL returns a credential free URL that can read objectPath until ttl elapses.
	SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)

	// Available reports whether the backend can be reached.
	Available(ctx context.Context) error

	// Name identifies the backend in logs.
	Name() string
}

// ValidateObjectPath rejects empty, absolute and non-canonical paths (e.g. containing "..").
func ValidateObjectPath(objectPath string) error {
	if objectPath == "" {
		return fmt.Errorf("object path is empty")
	}
	if strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return fmt.Errorf("object path %q must be relative", objectPath)
	}
	if path.Clean(objectPath) != objectPath || objectPath == ".." || strings.HasPrefix(objectPath, "../") {
		return fmt.Errorf("object path %q is not canonical", objectPath)
	}
	return nil
}
