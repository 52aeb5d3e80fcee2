package httpapi

import (
	"net/http"

	"github.com/noah-isme/tourbook/internal/common"
	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/roster"
)

type quoteRequest struct {
	TourID      int64  `json:"tour_id" validate:"required,gt=0"`
	ScheduleID  int64  `json:"schedule_id" validate:"required,gt=0"`
	Adults      int    `json:"num_adults" validate:"min=1"`
	Children    int    `json:"num_children" validate:"min=0"`
	Infants     int    `json:"num_infants" validate:"min=0"`
	SingleRooms int    `json:"num_single_rooms" validate:"min=0,ltefield=Adults"`
	CouponID    int64  `json:"coupon_id" validate:"gte=0"`
	CouponCode  string `json:"coupon_code" validate:"max=64"`
}

type quoteResponse struct {
	Prices pricing.UnitPrices `json:"prices"`
	Counts roster.Counts      `json:"counts"`
	Coupon *coupon.Coupon     `json:"coupon,omitempty"`
	Quote  pricing.Quote      `json:"quote"`
}

// Quote handles POST /v1/quote. It prices head counts without a draft.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	var payload quoteRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	prices, err := h.backend.Prices(r.Context(), payload.TourID, payload.ScheduleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	counts := roster.Counts{
		Adults:      payload.Adults,
		Children:    payload.Children,
		Infants:     payload.Infants,
		SingleRooms: payload.SingleRooms,
	}

	quoter := pricing.Quoter{Now: h.now}
	if payload.CouponID > 0 || payload.CouponCode != "" {
		found, err := h.findCoupon(r.Context(), couponRequest{CouponID: payload.CouponID, Code: payload.CouponCode})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := quoter.Select(found, pricing.Subtotal(counts, prices)); err != nil {
			h.metrics.CouponSelections.WithLabelValues("rejected").Inc()
			h.writeError(w, r, err)
			return
		}
		h.metrics.CouponSelections.WithLabelValues("accepted").Inc()
	}
	quote := quoter.Recompute(counts, prices)
	h.metrics.Quotes.WithLabelValues("stateless").Inc()
	common.JSON(w, http.StatusOK, map[string]any{"data": quoteResponse{
		Prices: prices,
		Counts: counts,
		Coupon: quoter.Active,
		Quote:  quote,
	}})
}
