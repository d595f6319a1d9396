// Package docstore provides the document store used to record issued passes.
//
// Documents are flat field maps addressed by collection and key. Upsert always replaces the
// whole document; there is no versioning.
//
// Backends: postgres (jsonb table managed by goose migrations), redis (one hash per document)
// and memory (dev and tests).
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no document exists for the key
var ErrNotFound = errors.New("document not found")

// DocumentStore stores documents keyed by collection and key.
type DocumentStore interface {
	// Upsert creates the document or fully overwrites an existing one.
	Upsert(ctx context.Context, collection, key string, fields map[string]any) error

	// Get returns the document fields or ErrNotFound.
	Get(ctx context.Context, collection, key string) (map[string]any, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the store's connections.
	Close() error
}

func validateAddress(collection, key string) error {
	if collection == "" {
		return fmt.Errorf("collection is required")
	}
	if key == "" {
		return fmt.Errorf("document key is required")
	}
	return nil
}
