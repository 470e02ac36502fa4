package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/daffodil/internal/config"
)

// Server exposes liveness, readiness and metrics on a dedicated port, apart
// from the business listeners.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	server   *http.Server
	checkers []Checker
}

// NewServer creates the observability server. checkers (postgres, redis) gate
// the readiness probe.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   r,
		checkers: checkers,
	}

	r.Get(cfg.LivenessPath, s.liveness)
	r.Get(cfg.ReadinessPath, s.readiness)
	r.Method(http.MethodGet, cfg.MetricsPath, promhttp.Handler())
	return s
}

// Handler returns the router, for serving in tests without a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%s", s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  s.cfg.Timeout * 3,
	}

	go func() {
		s.logger.Info("starting observability server",
			slog.String("addr", addr),
			slog.Int("checkers", len(s.checkers)),
			slog.String("metrics_path", s.cfg.MetricsPath),
		)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.Any("error", err))
		}
	}()
}

// Shutdown gracefully stops the server. It is a no-op if Start was not called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.server.Shutdown(ctx)
}
