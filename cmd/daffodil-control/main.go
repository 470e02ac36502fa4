// Package main runs the Daffodil Control Plane: the REST API for segments,
// experiments, users, orders and user reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaeljc/daffodil/internal/bootstrap"
	"github.com/rafaeljc/daffodil/internal/broker"
	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/controlapi"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/orders"
	"github.com/rafaeljc/daffodil/internal/scheduler"
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
	lg := logger.New(&cfg.App).With(slog.String("component", "control-plane"))
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

	segments, experiments, reads := infra.ReadPath()
	placer := orders.NewService(
		infra.Store,
		infra.Cache,
		broker.NewPublisher(infra.Redis, cfg.Consumer.Stream, cfg.Consumer.MaxLen),
		scheduler.New(infra.Redis, cfg.Scheduler.KeyPrefix),
		cfg.Dormancy.Horizon,
		orders.WithDelayOverride(cfg.App.Environment != config.EnvironmentProduction),
		orders.WithPropagationTimeout(cfg.Server.Control.PropagationTimeout),
	)

	api := controlapi.NewAPI(lg, controlapi.Dependencies{
		Users:       infra.Store,
		Segments:    segments,
		Experiments: experiments,
		Reads:       reads,
		Orders:      placer,
	})

	srvCfg := cfg.Server.Control
	srv := &http.Server{
		Addr:              srvCfg.Address(),
		Handler:           api.Router,
		ReadTimeout:       srvCfg.ReadTimeout,
		WriteTimeout:      srvCfg.WriteTimeout,
		ReadHeaderTimeout: srvCfg.ReadHeaderTimeout,
		IdleTimeout:       srvCfg.IdleTimeout,
		MaxHeaderBytes:    srvCfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("control plane listening", slog.String("addr", srv.Addr), slog.Bool("tls", srvCfg.TLSEnabled))
		var err error
		if srvCfg.TLSEnabled {
			err = srv.ListenAndServeTLS(srvCfg.TLSCert, srvCfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to serve http: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		lg.Info("shutdown signal received, draining requests")
	}

	infra.Shutdown("http", srv.Shutdown)
	lg.Info("control plane stopped")
	return nil
}
