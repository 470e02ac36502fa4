package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/validation"
)

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on a shared go-redis client.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already connected client. The store does not own it.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	validation.AssertDependency(client, "cache: redis client")
	return &RedisStore{client: client}
}

// Get returns the raw value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, apperr.Unavailable("redis", err)
	}
	return val, nil
}

// Set writes value with the given TTL (SET key value PX ttl).
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return apperr.Unavailable("redis", s.client.Set(ctx, key, value, ttl).Err())
}

// Delete removes all keys in a single DEL command.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return apperr.Unavailable("redis", s.client.Del(ctx, keys...).Err())
}
