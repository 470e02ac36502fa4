package controlapi

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/orders"
)

// maxDormancyCheckSeconds bounds dormancy_check_in_seconds before it becomes a
// time.Duration.
const maxDormancyCheckSeconds = int64(orders.MaxDormancyDelay / time.Second)

// handlePlaceOrder processes POST /api/v1/orders. The order is committed before
// the cache, event stream and scheduler are updated; steps that failed after
// the commit are listed in "degraded" and the request still answers 201.
func (a *API) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, CodeInvalidJSON, "Invalid JSON payload: "+err.Error())
		return
	}

	in := orders.PlaceOrderInput{
		UserID: req.UserID,
		Amount: req.Amount,
		City:   req.City,
	}
	if req.DormancyCheckInSeconds != nil {
		secs := *req.DormancyCheckInSeconds
		if secs < 1 || secs > maxDormancyCheckSeconds {
			writeError(w, r, apperr.Validation("dormancy_check_in_seconds: must be between 1 and %d", maxDormancyCheckSeconds))
			return
		}
		in.DormancyDelay = time.Duration(secs) * time.Second
	}

	res, err := a.orders.PlaceOrder(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, PlaceOrderResponse{
		Order: Order{
			ID:        res.Order.ID,
			UserID:    res.Order.UserID,
			Amount:    res.Order.Amount,
			City:      res.Order.City,
			CreatedAt: res.Order.CreatedAt,
		},
		DormancyCheckAt: res.DormancyCheckAt,
		Degraded:        res.Degraded,
	})
}
