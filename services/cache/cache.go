package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("key not found in cache")

// Cache stores JSON values under a key for a bounded time.
// A miss, expired entries included, is reported with ErrNotFound.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
