// Package controlapi implements the REST API of the Daffodil control plane:
// segment and experiment administration, users, orders and user reads.
package controlapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/daffodil/internal/assignment"
	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/orders"
	"github.com/rafaeljc/daffodil/internal/segment"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// SegmentService manages segment definitions and memberships.
type SegmentService interface {
	CreateSegment(ctx context.Context, in segment.CreateInput) (*store.Segment, bool, error)
	GetSegment(ctx context.Context, id string) (*store.Segment, error)
	ListSegmentsPage(ctx context.Context, limit, offset int) ([]*store.Segment, int64, error)
	Memberships(ctx context.Context, userID string) ([]string, error)
	Refresh(ctx context.Context, userID string) ([]string, error)
}

// ExperimentService manages experiment definitions.
type ExperimentService interface {
	CreateExperiment(ctx context.Context, in experiment.CreateInput) (*store.Experiment, bool, error)
	GetExperiment(ctx context.Context, id string) (*store.Experiment, error)
}

// ReadService serves user assignments and cache invalidation.
type ReadService interface {
	UserExperiments(ctx context.Context, userID string) (*assignment.UserView, error)
	BannerMixture(ctx context.Context, userID string) (*cache.BannerMixture, error)
	InvalidateUser(ctx context.Context, userID string) error
}

// OrderService places orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderInput) (*orders.PlaceOrderResult, error)
}

// Dependencies groups the services behind the API.
type Dependencies struct {
	Users       store.UserRepository
	Segments    SegmentService
	Experiments ExperimentService
	Reads       ReadService
	Orders      OrderService
}

// API holds the router and the services it dispatches to.
type API struct {
	// Router is the chi multiplexer serving every route.
	Router *chi.Mux

	users       store.UserRepository
	segments    SegmentService
	experiments ExperimentService
	reads       ReadService
	orders      OrderService
}

// NewAPI creates the API and registers its routes. log is the base logger that
// RequestLogger scopes to each request.
func NewAPI(log *slog.Logger, deps Dependencies) *API {
	validation.AssertNotNil(log, "controlapi: logger")
	validation.AssertDependency(deps.Users, "controlapi: user repository")
	validation.AssertDependency(deps.Segments, "controlapi: segment service")
	validation.AssertDependency(deps.Experiments, "controlapi: experiment service")
	validation.AssertDependency(deps.Reads, "controlapi: read service")
	validation.AssertDependency(deps.Orders, "controlapi: order service")

	api := &API{
		Router:      chi.NewRouter(),
		users:       deps.Users,
		segments:    deps.Segments,
		experiments: deps.Experiments,
		reads:       deps.Reads,
		orders:      deps.Orders,
	}
	api.configureRoutes(log)
	return api
}

func (a *API) configureRoutes(log *slog.Logger) {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger(log))
	a.Router.Use(MetricsMiddleware)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Route("/segments", func(r chi.Router) {
			r.Post("/", a.handleCreateSegment)
			r.Get("/", a.handleListSegments)
			r.Get("/{id}", a.handleGetSegment)
		})

		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", a.handleCreateExperiment)
			r.Get("/{id}", a.handleGetExperiment)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", a.handleCreateUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/experiments", a.handleUserExperiments)
				r.Get("/banner-mixture", a.handleBannerMixture)
				r.Get("/segments", a.handleUserSegments)
				r.Post("/segments/refresh", a.handleRefreshSegments)
				r.Delete("/cache", a.handleInvalidateCache)
			})
		})

		r.Post("/orders", a.handlePlaceOrder)
	})
}

// handleHealthCheck reports HTTP serving capability. Dependency checks live on
// the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
