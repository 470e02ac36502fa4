// Package main runs the Daffodil background workers: the order event consumer,
// the dormancy job runner and the periodic sweep.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/daffodil/internal/bootstrap"
	"github.com/rafaeljc/daffodil/internal/broker"
	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/consumer"
	"github.com/rafaeljc/daffodil/internal/dormancy"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/scheduler"
	"github.com/rafaeljc/daffodil/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lg := logger.New(&cfg.App).With(slog.String("component", "worker"))
	cfg.LogConfig(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Setup(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer infra.Close()

	obs := infra.Observability()
	obs.Start()
	defer infra.Shutdown("observability", obs.Shutdown)

	segments := infra.Segments()
	g, gctx := errgroup.WithContext(logger.WithContext(ctx, lg))

	if cfg.Consumer.Enabled {
		name := cfg.Consumer.Name
		if name == "" {
			if name, err = os.Hostname(); err != nil {
				return err
			}
		}
		stream := broker.NewStreamConsumer(infra.Redis, broker.GroupConfig{
			Stream:       cfg.Consumer.Stream,
			Group:        cfg.Consumer.Group,
			Consumer:     name,
			BatchSize:    cfg.Consumer.BatchSize,
			BlockTimeout: cfg.Consumer.BlockTimeout,
			ClaimMinIdle: cfg.Consumer.ClaimMinIdle,
		})
		c := consumer.New(stream, segments, infra.Cache, cfg.Consumer.ClaimMinIdle)
		g.Go(func() error { return c.Run(logger.With(gctx, slog.String("worker", "consumer"), slog.String("consumer", name))) })
	}

	if cfg.Scheduler.Enabled {
		runner := scheduler.NewRunner(scheduler.New(infra.Redis, cfg.Scheduler.KeyPrefix), &cfg.Scheduler)
		runner.Handle(dormancy.JobPrefix, dormancy.NewChecker(infra.Store, segments, infra.Cache).Handle)
		g.Go(func() error { return runner.Run(logger.With(gctx, slog.String("worker", "scheduler"))) })
	}

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(infra.Store, segments, infra.Cache, &cfg.Sweeper, cfg.Dormancy.Horizon)
		g.Go(func() error { return sw.Run(logger.With(gctx, slog.String("worker", "sweeper"))) })
	}

	lg.Info("workers started",
		slog.Bool("consumer", cfg.Consumer.Enabled),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
		slog.Bool("sweeper", cfg.Sweeper.Enabled),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("workers stopped")
	return nil
}
