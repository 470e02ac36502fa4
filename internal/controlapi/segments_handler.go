package controlapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/daffodil/internal/segment"
)

// handleCreateSegment processes POST /api/v1/segments. A name that already
// exists answers 200 with the stored segment.
func (a *API) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var req segment.CreateInput
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, CodeInvalidJSON, "Invalid JSON payload: "+err.Error())
		return
	}

	seg, created, err := a.segments.CreateSegment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	render.Status(r, status)
	render.JSON(w, r, newSegment(seg))
}

// handleListSegments processes GET /api/v1/segments with offset pagination.
// Out-of-range page and page_size values are clamped.
func (a *API) handleListSegments(w http.ResponseWriter, r *http.Request) {
	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		writeBadRequest(w, r, CodeInvalidQuery, err.Error())
		return
	}
	pageSize, err := parseOptionalInt(r, "page_size", defaultPageSize)
	if err != nil {
		writeBadRequest(w, r, CodeInvalidQuery, err.Error())
		return
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	segments, total, err := a.segments.ListSegmentsPage(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]Segment, len(segments))
	for i, s := range segments {
		dtos[i] = newSegment(s)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PaginatedResponse{
		Data:       dtos,
		Pagination: newPagination(total, page, pageSize),
	})
}

func (a *API) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := a.segments.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, newSegment(seg))
}
