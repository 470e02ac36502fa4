package controlapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/store"
)

// Machine-readable error codes.
const (
	CodeInvalidInput = "ERR_INVALID_INPUT"
	CodeInvalidJSON  = "ERR_INVALID_JSON"
	CodeInvalidQuery = "ERR_INVALID_QUERY_PARAM"
	CodeNotFound     = "ERR_NOT_FOUND"
	CodeConflict     = "ERR_CONFLICT"
	CodeUnavailable  = "ERR_UNAVAILABLE"
	CodeInternal     = "ERR_INTERNAL"
)

// Pagination limits for list endpoints.
const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Segment is the API representation of a segment.
type Segment struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rules       json.RawMessage `json:"rules"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func newSegment(s *store.Segment) Segment {
	return Segment{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Rules:       s.Rules,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Variant is the API representation of an experiment variant.
type Variant struct {
	Name    string `json:"name"`
	Weight  int    `json:"weight"`
	Banners []int  `json:"banners,omitempty"`
}

// Experiment is the API representation of an experiment.
type Experiment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Variants   []Variant `json:"variants"`
	SegmentIDs []string  `json:"segment_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

func newExperiment(e *store.Experiment) Experiment {
	variants := make([]Variant, len(e.Variants))
	for i, v := range e.Variants {
		variants[i] = Variant{Name: v.Name, Weight: v.Weight, Banners: v.Banners}
	}
	segmentIDs := e.SegmentIDs
	if segmentIDs == nil {
		segmentIDs = []string{}
	}
	return Experiment{
		ID:         e.ID,
		Name:       e.Name,
		Status:     e.Status,
		Variants:   variants,
		SegmentIDs: segmentIDs,
		CreatedAt:  e.CreatedAt,
	}
}

// CreateUserRequest registers a user.
type CreateUserRequest struct {
	UserID string `json:"user_id"`
}

// CreateUserResponse reports whether the user was new.
type CreateUserResponse struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// UserSegmentsResponse lists the segments a user belongs to.
type UserSegmentsResponse struct {
	UserID     string   `json:"user_id"`
	SegmentIDs []string `json:"segment_ids"`
}

func newUserSegments(userID string, ids []string) UserSegmentsResponse {
	if ids == nil {
		ids = []string{}
	}
	return UserSegmentsResponse{UserID: userID, SegmentIDs: ids}
}

// BannerMixtureResponse wraps a user's mixture, which is null when the user
// has no banners.
type BannerMixtureResponse struct {
	UserID        string               `json:"user_id"`
	BannerMixture *cache.BannerMixture `json:"banner_mixture"`
}

// PlaceOrderRequest is the payload of POST /orders.
type PlaceOrderRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
	City   *string `json:"city,omitempty"`
	// DormancyCheckInSeconds overrides the dormancy horizon. Outside production
	// only; when present it must be within 1s and orders.MaxDormancyDelay.
	DormancyCheckInSeconds *int64 `json:"dormancy_check_in_seconds,omitempty"`
}

// Order is the API representation of a placed order.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	City      *string   `json:"city,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PlaceOrderResponse carries the order, when its dormancy check runs and which
// follow-up steps failed.
type PlaceOrderResponse struct {
	Order           Order     `json:"order"`
	DormancyCheckAt time.Time `json:"dormancy_check_at"`
	Degraded        []string  `json:"degraded,omitempty"`
}

// PaginatedResponse is a standard wrapper for list endpoints to support offset pagination.
type PaginatedResponse struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

func newPagination(total int64, page, size int) Pagination {
	return Pagination{
		TotalItems:  total,
		TotalPages:  int(math.Ceil(float64(total) / float64(size))),
		CurrentPage: page,
		PageSize:    size,
	}
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`
	// Message is a human-readable description of the error.
	Message string `json:"message"`
	// Details lists individual field violations, when known.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// writeError maps err to a status code and a structured body. Unclassified
// errors are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		resp   ErrorResponse
	)
	switch apperr.Kind(err) {
	case apperr.ErrValidation:
		status = http.StatusBadRequest
		resp = ErrorResponse{Code: CodeInvalidInput, Message: err.Error(), Details: fieldDetails(err)}
	case apperr.ErrNotFound:
		status = http.StatusNotFound
		resp = ErrorResponse{Code: CodeNotFound, Message: err.Error()}
	case apperr.ErrConflict:
		status = http.StatusConflict
		resp = ErrorResponse{Code: CodeConflict, Message: err.Error()}
	case apperr.ErrUnavailable:
		status = http.StatusServiceUnavailable
		resp = ErrorResponse{Code: CodeUnavailable, Message: "A dependency is temporarily unavailable"}
		logger.FromContext(r.Context()).Warn("dependency unavailable", slog.Any("error", err))
	default:
		status = http.StatusInternalServerError
		resp = ErrorResponse{Code: CodeInternal, Message: "Internal server error"}
		logger.FromContext(r.Context()).Error("unhandled error", slog.Any("error", err))
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

// writeBadRequest answers a malformed request that never reached a service.
func writeBadRequest(w http.ResponseWriter, r *http.Request, code, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: code, Message: msg})
}

// parseOptionalInt reads an integer query parameter, returning def when absent.
func parseOptionalInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be an integer", key)
	}
	return v, nil
}

// fieldDetails splits "validation failed: Name: required; Weight: max=100"
// into per-field details. Messages without field entries yield nil.
func fieldDetails(err error) []ErrorDetail {
	msg := err.Error()
	_, rest, ok := strings.Cut(msg, apperr.ErrValidation.Error()+": ")
	if !ok {
		return nil
	}

	var details []ErrorDetail
	for part := range strings.SplitSeq(rest, "; ") {
		field, issue, ok := strings.Cut(part, ": ")
		if !ok || field == "" || strings.ContainsAny(field, " \t") {
			return nil
		}
		details = append(details, ErrorDetail{Field: field, Issue: issue})
	}
	return details
}
