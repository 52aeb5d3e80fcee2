package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tourbook/internal/backend"
	"github.com/noah-isme/tourbook/internal/booking"
	"github.com/noah-isme/tourbook/internal/common"
	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/draft"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/resilience"
	"github.com/noah-isme/tourbook/internal/roster"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func badRequest(code, message string, details any) *common.AppError {
	appErr := common.NewAppError(code, message, http.StatusBadRequest, nil)
	appErr.Details = details
	return appErr
}

// decodeJSON reads the request body into dst and validates it when v is set.
func decodeJSON(r *http.Request, v *validator.Validate, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.NewAppError("INVALID_JSON", "invalid JSON body", http.StatusBadRequest, err)
	}
	if v == nil {
		return nil
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			return badRequest("VALIDATION_ERROR", "invalid request payload", details)
		}
		return badRequest("VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func couponReason(err error) string {
	switch {
	case errors.Is(err, coupon.ErrMinimumSpendUnmet):
		return "minimum_order_not_met"
	case errors.Is(err, coupon.ErrCouponInactive):
		return "not_active"
	case errors.Is(err, coupon.ErrCouponExpired):
		return "expired"
	case errors.Is(err, coupon.ErrUnknownDiscountType):
		return "unsupported_discount_type"
	default:
		return "rejected"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var (
		appErr  *common.AppError
		blocked *booking.NotSubmittableError
		apiErr  *backend.APIError
	)
	switch {
	case errors.As(err, &appErr):
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
	case errors.Is(err, draft.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "DRAFT_NOT_FOUND", "draft not found or expired", nil)
	case errors.As(err, &blocked):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_SUBMITTABLE", "booking is not ready to submit", map[string]any{"blockers": blocked.Blockers})
	case errors.Is(err, pricing.ErrCouponRejected):
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_REJECTED", err.Error(), map[string]any{"reason": couponReason(err)})
	case errors.Is(err, roster.ErrRowOutOfRange):
		common.JSONError(w, http.StatusNotFound, "PASSENGER_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, roster.ErrUnknownCategory):
		common.JSONError(w, http.StatusBadRequest, "INVALID_CATEGORY", err.Error(), nil)
	case errors.Is(err, roster.ErrUnknownField), errors.Is(err, roster.ErrInvalidValue):
		common.JSONError(w, http.StatusBadRequest, "INVALID_PASSENGER_FIELD", err.Error(), nil)
	case errors.Is(err, roster.ErrTooManyRows):
		common.JSONError(w, http.StatusUnprocessableEntity, "ROSTER_LIMIT", err.Error(), nil)
	case errors.Is(err, booking.ErrUnknownMode):
		common.JSONError(w, http.StatusBadRequest, "INVALID_MODE", err.Error(), nil)
	case errors.Is(err, booking.ErrAlreadyLoaded):
		common.JSONError(w, http.StatusConflict, "ALREADY_LOADED", err.Error(), nil)
	case errors.Is(err, backend.ErrInvalidID):
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	case errors.Is(err, backend.ErrScheduleMismatch):
		common.JSONError(w, http.StatusUnprocessableEntity, "SCHEDULE_MISMATCH", "schedule does not belong to the tour", nil)
	case errors.Is(err, backend.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			common.JSONError(w, http.StatusUnprocessableEntity, "BACKEND_REJECTED", apiErr.Message, map[string]any{"status": apiErr.Status})
			return
		}
		h.logError(r, err)
		common.JSONError(w, http.StatusBadGateway, "BACKEND_ERROR", "booking backend failed", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "booking backend temporarily unavailable", nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.logError(r, err)
		common.JSONError(w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", nil)
	default:
		h.logError(r, err)
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}

func (h *Handler) logError(r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
}
