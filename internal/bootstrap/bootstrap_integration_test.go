//go:build integration

package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/daffodil/internal/assignment"
	"github.com/rafaeljc/daffodil/internal/bootstrap"
	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/testsupport"
)

func TestSetup_Integration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	redisContainer, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	endpoint, err := redisContainer.Container.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	host, port, _ := strings.Cut(endpoint, ":")

	for _, backend := range []string{config.CacheBackendRedis, config.CacheBackendMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{
				App: config.AppConfig{Name: "daffodil-test", Environment: "development", ShutdownTimeout: 5 * time.Second},
				Database: config.DatabaseConfig{
					URL:             pgContainer.ConnectionString,
					MaxConns:        4,
					PingMaxRetries:  3,
					PingBackoff:     100 * time.Millisecond,
					MonitorInterval: time.Second,
				},
				Redis: config.RedisConfig{
					Host:            host,
					Port:            port,
					PoolSize:        4,
					PingMaxRetries:  3,
					PingBackoff:     100 * time.Millisecond,
					MonitorInterval: time.Second,
				},
				Cache: config.CacheConfig{
					Backend:        backend,
					KeyPrefix:      "daffodil-" + backend,
					ExperimentsTTL: time.Minute,
					MixtureTTL:     time.Hour,
					MemoryCapacity: 100,
				},
				Engine: config.EngineConfig{MixtureSize: 2},
				Observability: config.ObservabilityConfig{
					Port:          "0",
					Timeout:       time.Second,
					LivenessPath:  "/healthz",
					ReadinessPath: "/readyz",
					MetricsPath:   "/metrics",
				},
			}

			infra, err := bootstrap.Setup(ctx, cfg, logger.Discard())
			require.NoError(t, err)
			defer infra.Close()

			_, _, reads := infra.ReadPath()
			first, err := reads.UserExperiments(ctx, "boot-user")
			require.NoError(t, err)
			assert.Equal(t, assignment.SourceDB, first.Source)

			second, err := reads.UserExperiments(ctx, "boot-user")
			require.NoError(t, err)
			assert.Equal(t, assignment.SourceCache, second.Source)

			rr := httptest.NewRecorder()
			infra.Observability().Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		})
	}
}
