package controlapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/logger"
)

// User registration outcomes.
const (
	UserCreated       = "created"
	UserAlreadyExists = "already_exists"
)

const maxUserIDLength = 255

// handleCreateUser processes POST /api/v1/users. Registering a known user is
// not an error.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, CodeInvalidJSON, "Invalid JSON payload: "+err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, apperr.Validation("user_id: required"))
		return
	}
	if len(req.UserID) > maxUserIDLength {
		writeError(w, r, apperr.Validation("user_id: max=%d", maxUserIDLength))
		return
	}

	created, err := a.users.CreateUser(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := CreateUserResponse{UserID: req.UserID, Status: UserAlreadyExists}
	status := http.StatusOK
	if created {
		resp.Status = UserCreated
		status = http.StatusCreated
		logger.FromContext(r.Context()).Info("user registered", slog.String("user_id", req.UserID))
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// handleUserExperiments processes GET /api/v1/users/{id}/experiments.
func (a *API) handleUserExperiments(w http.ResponseWriter, r *http.Request) {
	view, err := a.reads.UserExperiments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if view.Experiments == nil {
		view.Experiments = []experiment.Assignment{}
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, view)
}

// handleBannerMixture processes GET /api/v1/users/{id}/banner-mixture. A user
// without banner-bearing experiments gets a null mixture.
func (a *API) handleBannerMixture(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	mixture, err := a.reads.BannerMixture(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, BannerMixtureResponse{UserID: userID, BannerMixture: mixture})
}

// handleUserSegments processes GET /api/v1/users/{id}/segments.
func (a *API) handleUserSegments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ids, err := a.segments.Memberships(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, newUserSegments(userID, ids))
}

// handleRefreshSegments processes POST /api/v1/users/{id}/segments/refresh:
// re-evaluates every segment for the user and drops their cached assignments.
func (a *API) handleRefreshSegments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ids, err := a.segments.Refresh(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.reads.InvalidateUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("user segments refreshed",
		slog.String("user_id", userID),
		slog.Int("segments", len(ids)),
	)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, newUserSegments(userID, ids))
}

// handleInvalidateCache processes DELETE /api/v1/users/{id}/cache.
func (a *API) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := a.reads.InvalidateUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
