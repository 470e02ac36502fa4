// Package cache provides the assignment cache for Daffodil.
// It keeps two independent entries per user (experiment assignments and banner
// mixture) on a pluggable key-value Store with per-key TTL.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Store when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the key-value backend of the assignment cache.
// Operations are atomic per key. Errors other than ErrMiss wrap apperr.ErrUnavailable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
