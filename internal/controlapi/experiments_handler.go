package controlapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/daffodil/internal/experiment"
)

// handleCreateExperiment processes POST /api/v1/experiments. The experiment and
// its segment links are created together; a repeated request with the same
// name answers 200 with the existing experiment.
func (a *API) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req experiment.CreateInput
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, CodeInvalidJSON, "Invalid JSON payload: "+err.Error())
		return
	}

	exp, created, err := a.experiments.CreateExperiment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	render.Status(r, status)
	render.JSON(w, r, newExperiment(exp))
}

func (a *API) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := a.experiments.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, newExperiment(exp))
}
