package testsupport

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/config"
)

// RedisContainer holds references to the ephemeral Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	// Client is connected through the same factory the services use.
	Client *goredis.Client
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// Flush removes every key so scenarios start from an empty keyspace.
func (c *RedisContainer) Flush(ctx context.Context) error {
	return c.Client.FlushDB(ctx).Err()
}

// StartRedisContainer spins up a Redis 7-alpine container.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	// endpoint is "host:port", e.g. "localhost:54321"
	host, port, _ := strings.Cut(endpoint, ":")

	testCfg := &config.RedisConfig{
		Host:           host,
		Port:           port,
		PoolSize:       10,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   3 * time.Second,
		PingMaxRetries: 5,
		PingBackoff:    500 * time.Millisecond,
	}
	client, err := cache.NewRedisClient(ctx, testCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{
		Container: redisContainer,
		Client:    client,
	}, nil
}
