// Package main runs the Daffodil Data Plane: the gRPC read path serving user
// experiments and banner mixtures.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/daffodil/internal/bootstrap"
	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/dataapi"
	"github.com/rafaeljc/daffodil/internal/logger"
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
	lg := logger.New(&cfg.App).With(slog.String("component", "data-plane"))
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

	_, _, reads := infra.ReadPath()
	api := dataapi.NewAPI(reads)

	// Create the TCP listener first (Fail Fast)
	srvCfg := cfg.Server.Data
	listener, err := net.Listen("tcp", srvCfg.Address())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", srvCfg.Address(), err)
	}

	opts := append(dataapi.ServerOptions(lg),
		grpc.MaxConcurrentStreams(srvCfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             srvCfg.KeepaliveTime,
			Timeout:          srvCfg.KeepaliveTimeout,
			MaxConnectionAge: srvCfg.MaxConnectionAge,
		}),
	)
	grpcServer := grpc.NewServer(opts...)
	api.Register(grpcServer)

	hs := health.NewServer()
	hs.SetServingStatus(dataapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	errCh := make(chan error, 1)
	go func() {
		lg.Info("data plane listening", slog.String("addr", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		lg.Info("shutdown signal received, stopping gRPC server")
	}

	hs.Shutdown()
	infra.Shutdown("grpc", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			grpcServer.Stop()
			return ctx.Err()
		}
	})
	lg.Info("data plane stopped")
	return nil
}
