package config

import (
	"fmt"
	"time"
)

const (
	// CacheBackendRedis stores assignment entries in Redis (shared across replicas).
	CacheBackendRedis = "redis"

	// CacheBackendMemory keeps assignment entries in process memory. Each binary
	// holds its own copy, so invalidations do not cross processes; it is only
	// accepted in development.
	CacheBackendMemory = "memory"
)

// CacheConfig configures the per-user assignment cache.
type CacheConfig struct {
	Backend   string `envconfig:"BACKEND" default:"redis" validate:"oneof=redis memory"`
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"daffodil"`

	// ExperimentsTTL is the lifetime of the experiment-assignment entry.
	ExperimentsTTL time.Duration `envconfig:"EXPERIMENTS_TTL" default:"5m" validate:"gt=0"`

	// MixtureTTL is the lifetime of the banner-mixture entry. It is deliberately
	// longer than ExperimentsTTL so banners stay stable across a session.
	MixtureTTL time.Duration `envconfig:"MIXTURE_TTL" default:"24h" validate:"gt=0"`

	// MemoryCapacity caps the number of entries kept by the memory backend.
	MemoryCapacity int `envconfig:"MEMORY_CAPACITY" default:"100000" validate:"min=1"`
}

// Validate checks cross-field constraints.
func (c *CacheConfig) Validate(environment string) error {
	if c.Backend == CacheBackendMemory && environment != EnvironmentDevelopment {
		return fmt.Errorf("cache backend %q is only allowed in %s, got %s", CacheBackendMemory, EnvironmentDevelopment, environment)
	}
	if err := validateNoWhitespace(c.KeyPrefix, "cache key prefix"); err != nil {
		return err
	}
	if c.MixtureTTL < c.ExperimentsTTL {
		return fmt.Errorf("cache mixture_ttl (%s) must not be shorter than experiments_ttl (%s)", c.MixtureTTL, c.ExperimentsTTL)
	}
	return nil
}

// EngineConfig holds tunables of the assignment engine itself.
type EngineConfig struct {
	// MixtureSize is the number of banners drawn into a user's mixture.
	MixtureSize int `envconfig:"MIXTURE_SIZE" default:"3" validate:"min=1,max=100"`
}
