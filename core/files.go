package core

import (
	"context"
	"io"
)

// FileStore persists uploaded files and returns the path (or URL) they can be fetched from.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	// Delete removes the file stored under key. A missing file is not an error.
	Delete(ctx context.Context, key string) error
}
