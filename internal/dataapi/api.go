// Package dataapi implements the gRPC Data Plane: the hot read path serving
// user experiment assignments and banner mixtures.
package dataapi

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/assignment"
	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// ReadService is the read path the data plane serves from.
type ReadService interface {
	UserExperiments(ctx context.Context, userID string) (*assignment.UserView, error)
	BannerMixture(ctx context.Context, userID string) (*cache.BannerMixture, error)
	InvalidateUser(ctx context.Context, userID string) error
}

// API implements DataPlaneServer.
type API struct {
	reads ReadService
}

var _ DataPlaneServer = (*API)(nil)

// NewAPI creates a new Data Plane gRPC API instance.
func NewAPI(reads ReadService) *API {
	validation.AssertDependency(reads, "dataapi: read service")
	return &API{reads: reads}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, a)
}

// GetUserExperiments returns the user's experiments and banner mixture,
// resolving segments on first sight.
func (a *API) GetUserExperiments(ctx context.Context, req *UserRequest) (*UserExperimentsResponse, error) {
	view, err := a.reads.UserExperiments(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	experiments := view.Experiments
	if experiments == nil {
		experiments = []experiment.Assignment{}
	}
	return &UserExperimentsResponse{
		UserID:        view.UserID,
		Experiments:   experiments,
		BannerMixture: view.BannerMixture,
		Source:        view.Source,
	}, nil
}

// GetBannerMixture returns the user's banner mixture.
func (a *API) GetBannerMixture(ctx context.Context, req *UserRequest) (*BannerMixtureResponse, error) {
	mixture, err := a.reads.BannerMixture(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &BannerMixtureResponse{UserID: req.UserID, BannerMixture: mixture}, nil
}

// InvalidateUser drops the user's cached assignments.
func (a *API) InvalidateUser(ctx context.Context, req *UserRequest) (*InvalidateUserResponse, error) {
	if err := a.reads.InvalidateUser(ctx, req.UserID); err != nil {
		return nil, toStatus(ctx, err)
	}
	return &InvalidateUserResponse{}, nil
}

// toStatus maps an application error to a gRPC status. Unclassified errors are
// logged and hidden behind a generic Internal message.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	switch apperr.Kind(err) {
	case apperr.ErrValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case apperr.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	case apperr.ErrConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case apperr.ErrUnavailable:
		logger.FromContext(ctx).Warn("dependency unavailable", slog.Any("error", err))
		return status.Error(codes.Unavailable, "a dependency is temporarily unavailable")
	default:
		logger.FromContext(ctx).Error("unhandled error", slog.Any("error", err))
		return status.Error(codes.Internal, "internal error")
	}
}
