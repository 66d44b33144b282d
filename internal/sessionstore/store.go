// Package sessionstore persists short-lived conversational sessions as opaque text
// blobs keyed by string. Two backends are provided: Redis for deployments with more
// than one server process, and an in-memory map for development and tests.
package sessionstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("session key not found")

// Store is a generic key-value store. Writes are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key that starts with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
