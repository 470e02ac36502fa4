package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/daffodil/internal/observability"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in process memory using otter (S3-FIFO) with a
// TTL per entry. It serves single-process deployments and tests.
type MemoryStore struct {
	entries otter.CacheWithVariableTTL[string, []byte]
}

// NewMemoryStore creates a store bounded to capacity entries.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	entries, err := otter.MustBuilder[string, []byte](capacity).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build memory cache: %w", err)
	}
	return &MemoryStore{entries: entries}, nil
}

// Get returns the value at key, or ErrMiss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	val, ok := s.entries.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return val, nil
}

// Set stores a private copy of value for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.entries.Set(key, buf, ttl)
	return nil
}

// Delete removes the given keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.entries.Delete(key)
	}
	return nil
}

// Len returns the current number of entries.
func (s *MemoryStore) Len() int {
	return s.entries.Size()
}

// RunMetricsCollector exports the entry count until ctx is cancelled.
func (s *MemoryStore) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.MemoryCacheItems.Set(float64(s.entries.Size()))
		}
	}
}

// Close stops otter's background goroutines.
func (s *MemoryStore) Close() {
	s.entries.Close()
}
