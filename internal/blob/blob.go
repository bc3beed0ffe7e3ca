// Package blob abstracts external attachment storage. The coordinator
// only ever releases blobs (on message delete, best-effort); upload and
// download are served by the HTTP layer.
package blob

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob: not found")

// Store is keyed by an opaque storage id assigned at upload time.
type Store interface {
	Put(ctx context.Context, id string, data []byte, contentType string) error
	Get(ctx context.Context, id string) ([]byte, string, error)
	Delete(ctx context.Context, id string) error
}
