package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
)

// NewRedisClient initializes a Redis client from cfg and verifies connectivity
// with exponential backoff. The same client backs the cache, the broker and the
// scheduler; the caller owns it and must Close it on shutdown.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	maxRetries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg))
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			log.Info("connected to redis", slog.Int("attempt", attempt))
			return client, nil
		}

		log.Warn("redis ping failed", slog.Int("attempt", attempt), slog.Any("error", lastErr))
		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

func redisOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func pingTimeout(cfg *config.RedisConfig) time.Duration {
	if cfg.DialTimeout > 0 {
		return cfg.DialTimeout
	}
	return 5 * time.Second
}

// RunPoolMonitor exports go-redis pool statistics until ctx is cancelled.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s := client.PoolStats()
		observability.RedisPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns))
		observability.RedisPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns))
		observability.RedisPoolConnections.WithLabelValues("stale").Set(float64(s.StaleConns))
		observability.RedisPoolEvents.WithLabelValues("hit").Set(float64(s.Hits))
		observability.RedisPoolEvents.WithLabelValues("miss").Set(float64(s.Misses))
		observability.RedisPoolEvents.WithLabelValues("timeout").Set(float64(s.Timeouts))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
