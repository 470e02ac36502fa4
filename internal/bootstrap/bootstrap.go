// Package bootstrap wires the infrastructure shared by the Daffodil binaries:
// connection pools, the assignment cache backend, the read path and the
// observability server.
//
// The memory cache backend lives inside one process. The control, data and
// worker binaries would each hold a private copy and never see each other's
// invalidations, so config only accepts it in development, where a single
// process is expected.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/daffodil/internal/assignment"
	"github.com/rafaeljc/daffodil/internal/banner"
	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/database"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/segment"
	"github.com/rafaeljc/daffodil/internal/store"
)

// memoryMetricsInterval is how often the in-process cache size is exported.
const memoryMetricsInterval = 15 * time.Second

// Infra holds the long-lived clients of a process.
type Infra struct {
	Config *config.Config
	Log    *slog.Logger

	DB    *pgxpool.Pool
	Redis *redis.Client
	Store *store.PostgresStore
	Cache *cache.AssignmentCache

	memory *cache.MemoryStore
}

// Setup connects to Postgres and Redis, selects the cache backend and starts
// the pool monitors. The monitors stop when ctx is cancelled; Close releases
// the clients.
func Setup(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Infra, error) {
	ctx = logger.WithContext(ctx, log)

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	rdb, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	infra := &Infra{
		Config: cfg,
		Log:    log,
		DB:     pool,
		Redis:  rdb,
		Store:  store.NewPostgresStore(pool),
	}

	var backend cache.Store
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		mem, err := cache.NewMemoryStore(cfg.Cache.MemoryCapacity)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		infra.memory = mem
		backend = mem
		go mem.RunMetricsCollector(ctx, memoryMetricsInterval)
	default:
		backend = cache.NewRedisStore(rdb)
	}
	infra.Cache = cache.NewAssignmentCache(backend, &cfg.Cache)

	go database.RunPoolMonitor(ctx, pool, cfg.Database.MonitorInterval)
	go cache.RunPoolMonitor(ctx, rdb, cfg.Redis.MonitorInterval)

	log.Info("infrastructure ready", slog.String("cache_backend", cfg.Cache.Backend))
	return infra, nil
}

// Close releases every client. Safe to call on a partially built Infra.
func (i *Infra) Close() {
	if i.memory != nil {
		i.memory.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// Segments builds the segment resolver over the Postgres store.
func (i *Infra) Segments() *segment.Resolver {
	return segment.NewResolver(i.Store, i.Store, segment.NewStatsProvider(i.Store))
}

// ReadPath builds the segment resolver, the experiment service and the read
// path on top of them.
func (i *Infra) ReadPath() (*segment.Resolver, *experiment.Service, *assignment.Service) {
	segments := i.Segments()
	experiments := experiment.NewService(i.Store, i.Store)
	mixtures := banner.NewGenerator(i.Cache, experiments, banner.WithSize(i.Config.Engine.MixtureSize))
	return segments, experiments, assignment.NewService(i.Cache, segments, experiments, mixtures)
}

// Observability builds the probe and metrics server, gated on both pools.
func (i *Infra) Observability() *observability.Server {
	return observability.NewServer(i.Log, &i.Config.Observability,
		database.NewHealthChecker(i.DB),
		cache.NewHealthChecker(i.Redis),
	)
}

// Shutdown runs stop under the configured shutdown timeout and logs a failure.
func (i *Infra) Shutdown(name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), i.Config.App.ShutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		i.Log.Error("shutdown failed", slog.String("component", name), slog.Any("error", err))
	}
}
