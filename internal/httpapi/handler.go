package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tourbook/internal/backend"
	"github.com/noah-isme/tourbook/internal/booking"
	"github.com/noah-isme/tourbook/internal/common"
	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/draft"
	"github.com/noah-isme/tourbook/internal/obs"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/roster"
)

// Backend is the subset of the booking backend the API depends on.
type Backend interface {
	Prices(ctx context.Context, tourID, scheduleID int64) (pricing.UnitPrices, error)
	ListCoupons(ctx context.Context) ([]coupon.Coupon, error)
	InvalidateCoupons(ctx context.Context) error
	GetBooking(ctx context.Context, id int64) (backend.Booking, error)
	booking.Submitter
}

// Handler exposes the booking draft endpoints.
type Handler struct {
	backend  Backend
	drafts   *draft.Store
	metrics  *obs.DomainMetrics
	validate *validator.Validate
	now      func() time.Time
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Backend Backend
	Drafts  *draft.Store
	// Metrics defaults to collectors on a private registry.
	Metrics *obs.DomainMetrics
	Now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = obs.NewDomainMetrics("tourbook", prometheus.NewRegistry())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Drafts != nil && cfg.Drafts.Now == nil {
		cfg.Drafts.Now = now
	}
	return &Handler{
		backend:  cfg.Backend,
		drafts:   cfg.Drafts,
		metrics:  metrics,
		validate: newValidator(),
		now:      now,
	}
}

type draftResponse struct {
	ID string `json:"id"`
	booking.View
}

type createDraftRequest struct {
	Mode       string `json:"mode"`
	TourID     int64  `json:"tour_id" validate:"gte=0"`
	ScheduleID int64  `json:"schedule_id" validate:"gte=0"`
	BookingID  int64  `json:"booking_id" validate:"gte=0"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.backend == nil || h.drafts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return false
	}
	return true
}

// CreateDraft handles POST /v1/drafts.
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload createDraftRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	mode, err := booking.ParseMode(payload.Mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var sess *booking.Session
	if mode == booking.ModeUpdate {
		sess, err = h.loadExisting(r.Context(), payload)
	} else {
		sess, err = h.startNew(r.Context(), mode, payload)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view := h.publish(r.Context(), sess)
	id, err := h.drafts.Create(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.Drafts.WithLabelValues("create").Inc()
	h.metrics.Quotes.WithLabelValues("draft").Inc()
	zerolog.Ctx(r.Context()).Info().
		Str("draft_id", id).
		Str("mode", string(mode)).
		Int64("tour_id", sess.TourID).
		Msg("draft created")
	common.JSON(w, http.StatusCreated, map[string]any{"data": draftResponse{ID: id, View: view}})
}

func (h *Handler) startNew(ctx context.Context, mode booking.Mode, payload createDraftRequest) (*booking.Session, error) {
	if payload.TourID <= 0 {
		return nil, badRequest("VALIDATION_ERROR", "tour_id is required", map[string]string{"tour_id": "required"})
	}
	sess := booking.New(mode, payload.TourID)
	sess.Now = h.now
	if payload.ScheduleID > 0 {
		prices, err := h.backend.Prices(ctx, payload.TourID, payload.ScheduleID)
		if err != nil {
			return nil, err
		}
		sess.SelectSchedule(payload.ScheduleID, prices)
	}
	return sess, nil
}

// loadExisting seeds an update-mode session from a stored booking. Prices are
// applied before the booking so its coupon is checked against the real subtotal.
func (h *Handler) loadExisting(ctx context.Context, payload createDraftRequest) (*booking.Session, error) {
	if payload.BookingID <= 0 {
		return nil, badRequest("VALIDATION_ERROR", "booking_id is required in update mode", map[string]string{"booking_id": "required"})
	}
	existing, err := h.backend.GetBooking(ctx, payload.BookingID)
	if err != nil {
		return nil, err
	}
	tourID := existing.TourID
	if tourID == 0 {
		tourID = payload.TourID
	}
	scheduleID := existing.ScheduleID
	if scheduleID == 0 {
		scheduleID = payload.ScheduleID
	}

	sess := booking.New(booking.ModeUpdate, tourID)
	sess.Now = h.now
	if scheduleID > 0 {
		prices, err := h.backend.Prices(ctx, tourID, scheduleID)
		if err != nil {
			return nil, err
		}
		sess.SelectSchedule(scheduleID, prices)
	}
	var catalog []coupon.Coupon
	if existing.CouponID != nil {
		if catalog, err = h.backend.ListCoupons(ctx); err != nil {
			return nil, err
		}
	}
	sess.Roster.BeginLoad()
	if err := sess.LoadBooking(existing, catalog); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetDraft handles GET /v1/drafts/{draftID}. Pending notices are shown but
// kept until the next mutation.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id := chi.URLParam(r, "draftID")
	sess, err := h.drafts.Load(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": draftResponse{ID: id, View: sess.View()}})
}

// DeleteDraft handles DELETE /v1/drafts/{draftID}.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.drafts.Delete(r.Context(), chi.URLParam(r, "draftID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.Drafts.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

type scheduleRequest struct {
	ScheduleID int64 `json:"schedule_id" validate:"required,gt=0"`
}

// SelectSchedule handles PUT /v1/drafts/{draftID}/schedule.
func (h *Handler) SelectSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload scheduleRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "draftID")
	current, err := h.drafts.Load(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	prices, err := h.backend.Prices(r.Context(), current.TourID, payload.ScheduleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, "schedule", func(_ context.Context, s *booking.Session) error {
		s.SelectSchedule(payload.ScheduleID, prices)
		return nil
	})
}

type countRequest struct {
	Delta int `json:"delta" validate:"min=-50,max=50"`
}

// ChangeCount handles POST /v1/drafts/{draftID}/passengers/{category}/count.
func (h *Handler) ChangeCount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	category, err := roster.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload countRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, "count", func(_ context.Context, s *booking.Session) error {
		_, err := s.SetCount(category, payload.Delta)
		return err
	})
}

type fieldRequest struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

// UpdatePassenger handles PUT /v1/drafts/{draftID}/passengers/{category}/{index}.
func (h *Handler) UpdatePassenger(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	category, index, err := rowParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload fieldRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, "passenger", func(_ context.Context, s *booking.Session) error {
		return s.UpdateField(category, index, payload.Field, payload.Value)
	})
}

// ValidatePassenger handles POST /v1/drafts/{draftID}/passengers/{category}/{index}/validate.
func (h *Handler) ValidatePassenger(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	category, index, err := rowParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, "validate", func(_ context.Context, s *booking.Session) error {
		_, err := s.ValidateRow(category, index)
		return err
	})
}

func rowParams(r *http.Request) (roster.Category, int, error) {
	category, err := roster.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		return "", 0, err
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return "", 0, badRequest("INVALID_INDEX", "passenger index must be a non-negative integer", nil)
	}
	return category, index, nil
}

type contactRequest struct {
	booking.Contact
	SpecialRequest *string `json:"special_request"`
}

// UpdateContact handles PUT /v1/drafts/{draftID}/contact. Contact errors are
// reported in the view rather than rejected.
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload contactRequest
	if err := decodeJSON(r, nil, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, "contact", func(_ context.Context, s *booking.Session) error {
		s.SetContact(payload.Contact)
		if payload.SpecialRequest != nil {
			s.SetSpecialRequest(*payload.SpecialRequest)
		}
		return nil
	})
}

type couponRequest struct {
	CouponID int64  `json:"coupon_id" validate:"gte=0"`
	Code     string `json:"code" validate:"max=64"`
}

var errCouponNotFound = common.NewAppError("COUPON_NOT_FOUND", "coupon not found", http.StatusNotFound, nil)

// findCoupon looks the coupon up in the catalog. A miss refreshes the cached
// catalog once before giving up.
func (h *Handler) findCoupon(ctx context.Context, payload couponRequest) (coupon.Coupon, error) {
	code := strings.TrimSpace(payload.Code)
	if payload.CouponID == 0 && code == "" {
		return coupon.Coupon{}, badRequest("VALIDATION_ERROR", "coupon_id or code is required", nil)
	}
	lookup := func() (coupon.Coupon, bool, error) {
		catalog, err := h.backend.ListCoupons(ctx)
		if err != nil {
			return coupon.Coupon{}, false, err
		}
		if payload.CouponID > 0 {
			found, ok := coupon.FindByID(catalog, payload.CouponID)
			return found, ok, nil
		}
		found, ok := coupon.FindByCode(catalog, code)
		return found, ok, nil
	}
	found, ok, err := lookup()
	if err != nil || ok {
		return found, err
	}
	if err := h.backend.InvalidateCoupons(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("coupon_cache_invalidate_failed")
		return coupon.Coupon{}, errCouponNotFound
	}
	found, ok, err = lookup()
	if err != nil {
		return coupon.Coupon{}, err
	}
	if !ok {
		return coupon.Coupon{}, errCouponNotFound
	}
	return found, nil
}

// SelectCoupon handles PUT /v1/drafts/{draftID}/coupon.
func (h *Handler) SelectCoupon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload couponRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	found, err := h.findCoupon(r.Context(), payload)
	if err != nil {
		if errors.Is(err, errCouponNotFound) {
			h.metrics.CouponSelections.WithLabelValues("not_found").Inc()
		}
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, "coupon", func(ctx context.Context, s *booking.Session) error {
		if err := s.SelectCoupon(found); err != nil {
			h.metrics.CouponSelections.WithLabelValues("rejected").Inc()
			zerolog.Ctx(ctx).Info().Str("coupon", found.Code).Str("reason", couponReason(err)).Msg("coupon rejected")
			return err
		}
		h.metrics.CouponSelections.WithLabelValues("accepted").Inc()
		return nil
	})
}

// RemoveCoupon handles DELETE /v1/drafts/{draftID}/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.mutate(w, r, "coupon_remove", func(_ context.Context, s *booking.Session) error {
		s.RemoveCoupon()
		return nil
	})
}

// Submit handles POST /v1/drafts/{draftID}/submit. A successful submission
// removes the draft.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id := chi.URLParam(r, "draftID")
	var (
		receipt backend.Receipt
		mode    booking.Mode
	)
	_, err := h.drafts.Update(r.Context(), id, func(s *booking.Session) error {
		mode = s.Mode
		var err error
		receipt, err = s.Submit(r.Context(), h.backend)
		return err
	})
	logger := zerolog.Ctx(r.Context())
	if err != nil {
		if mode != "" {
			h.metrics.Submissions.WithLabelValues(string(mode), submissionResult(err)).Inc()
		}
		h.writeError(w, r, err)
		return
	}
	h.metrics.Submissions.WithLabelValues(string(mode), "success").Inc()
	if err := h.drafts.Delete(r.Context(), id); err != nil && !errors.Is(err, draft.ErrNotFound) {
		logger.Warn().Err(err).Str("draft_id", id).Msg("delete submitted draft")
	}
	logger.Info().
		Str("draft_id", id).
		Str("mode", string(mode)).
		Int64("booking_id", receipt.BookingID).
		Msg("booking submitted")
	common.JSON(w, http.StatusCreated, map[string]any{"data": receipt})
}

func submissionResult(err error) string {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, booking.ErrNotSubmittable):
		return "blocked"
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		return "rejected"
	default:
		return "error"
	}
}

// mutate applies fn to the draft under its lock and renders the resulting view.
// When fn fails the draft is still saved and the error is rendered instead.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *booking.Session) error) {
	id := chi.URLParam(r, "draftID")
	var view booking.View
	_, err := h.drafts.Update(r.Context(), id, func(s *booking.Session) error {
		if err := fn(r.Context(), s); err != nil {
			return err
		}
		view = h.publish(r.Context(), s)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.Drafts.WithLabelValues(op).Inc()
	h.metrics.Quotes.WithLabelValues("draft").Inc()
	common.JSON(w, http.StatusOK, map[string]any{"data": draftResponse{ID: id, View: view}})
}

// publish renders the view and hands pending notices to this response only.
func (h *Handler) publish(ctx context.Context, s *booking.Session) booking.View {
	view := s.View()
	for _, n := range s.DrainNotices() {
		if n.Kind == booking.NoticeCouponRevoked {
			h.metrics.CouponRevocations.Inc()
			zerolog.Ctx(ctx).Info().Str("notice", n.Kind).Msg(n.Message)
		}
	}
	return view
}
