package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/pricing"
)

const maxResponseBytes = 4 << 20

var (
	// ErrNotFound is matched by APIError values carrying a 404 status.
	ErrNotFound = errors.New("backend: resource not found")
	// ErrInvalidID is returned for non-positive identifiers.
	ErrInvalidID = errors.New("backend: invalid id")
	// ErrScheduleMismatch is returned when a schedule belongs to another tour.
	ErrScheduleMismatch = errors.New("backend: schedule does not belong to tour")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Doer executes HTTP requests. resilience.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	HTTP    Doer
	Cache   *Cache
	Logger  zerolog.Logger
}

// Client talks to the tour booking backend.
type Client struct {
	baseURL *url.URL
	http    Doer
	cache   *Cache
	logger  zerolog.Logger
}

// New validates the options and constructs a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("backend: base url must be http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("backend: base url must include host")
	}
	if opts.HTTP == nil {
		return nil, errors.New("backend: http client is required")
	}
	return &Client{baseURL: parsed, http: opts.HTTP, cache: opts.Cache, logger: opts.Logger}, nil
}

// NewHTTPClient returns an HTTP client whose transport is traced.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// GetTour fetches a tour.
func (c *Client) GetTour(ctx context.Context, id int64) (Tour, error) {
	var tour Tour
	if id <= 0 {
		return tour, ErrInvalidID
	}
	err := c.call(ctx, http.MethodGet, []string{"tour", strconv.FormatInt(id, 10)}, nil, &tour)
	return tour, err
}

// GetSchedule fetches a tour schedule.
func (c *Client) GetSchedule(ctx context.Context, id int64) (Schedule, error) {
	var schedule Schedule
	if id <= 0 {
		return schedule, ErrInvalidID
	}
	err := c.call(ctx, http.MethodGet, []string{"tour_schedules", strconv.FormatInt(id, 10)}, nil, &schedule)
	return schedule, err
}

// Prices loads the unit prices for a schedule of a tour.
func (c *Client) Prices(ctx context.Context, tourID, scheduleID int64) (pricing.UnitPrices, error) {
	tour, err := c.GetTour(ctx, tourID)
	if err != nil {
		return pricing.UnitPrices{}, err
	}
	schedule, err := c.GetSchedule(ctx, scheduleID)
	if err != nil {
		return pricing.UnitPrices{}, err
	}
	if owner := schedule.TourID.Int64(); owner != 0 && owner != tourID {
		return pricing.UnitPrices{}, ErrScheduleMismatch
	}
	return UnitPrices(tour, schedule), nil
}

// ListCoupons returns the coupon catalog, served from cache when possible.
func (c *Client) ListCoupons(ctx context.Context) ([]coupon.Coupon, error) {
	var cached []coupon.Coupon
	if ok, err := c.cache.GetJSON(ctx, couponCatalogKey, &cached); err != nil {
		c.loggerFor(ctx).Warn().Err(err).Msg("coupon_cache_read_failed")
	} else if ok {
		return cached, nil
	}

	var dtos []couponDTO
	if err := c.call(ctx, http.MethodGet, []string{"coupon", "all"}, nil, &dtos); err != nil {
		return nil, err
	}
	catalog := make([]coupon.Coupon, 0, len(dtos))
	for _, dto := range dtos {
		catalog = append(catalog, dto.toCoupon())
	}
	if err := c.cache.SetJSON(ctx, couponCatalogKey, catalog); err != nil {
		c.loggerFor(ctx).Warn().Err(err).Msg("coupon_cache_write_failed")
	}
	return catalog, nil
}

// InvalidateCoupons drops the cached coupon catalog so the next ListCoupons
// reads from the backend.
func (c *Client) InvalidateCoupons(ctx context.Context) error {
	return c.cache.Invalidate(ctx, couponCatalogKey)
}

// GetBooking fetches an existing booking for editing.
func (c *Client) GetBooking(ctx context.Context, id int64) (Booking, error) {
	if id <= 0 {
		return Booking{}, ErrInvalidID
	}
	var dto bookingDTO
	if err := c.call(ctx, http.MethodGet, []string{"booking", strconv.FormatInt(id, 10)}, nil, &dto); err != nil {
		return Booking{}, err
	}
	return dto.toBooking(), nil
}

// CreateBooking submits a new booking.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (Receipt, error) {
	var dto receiptDTO
	if err := c.call(ctx, http.MethodPost, []string{"booking", "create"}, req, &dto); err != nil {
		return Receipt{}, err
	}
	return dto.toReceipt(), nil
}

// UpdateBooking submits changes to an existing booking.
func (c *Client) UpdateBooking(ctx context.Context, req BookingRequest) (Receipt, error) {
	if req.BookingID <= 0 {
		return Receipt{}, ErrInvalidID
	}
	var dto receiptDTO
	if err := c.call(ctx, http.MethodPatch, []string{"booking", "update"}, req, &dto); err != nil {
		return Receipt{}, err
	}
	receipt := dto.toReceipt()
	if receipt.BookingID == 0 {
		receipt.BookingID = req.BookingID
	}
	return receipt, nil
}

func (c *Client) call(ctx context.Context, method string, path []string, body any, dst any) error {
	target := c.baseURL.JoinPath(path...)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.loggerFor(ctx).Error().Err(err).Str("method", method).Str("path", target.Path).Msg("backend_call_failed")
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}
	c.loggerFor(ctx).Debug().
		Str("method", method).
		Str("path", target.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend_call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}
	if dst == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := decodeData(data, dst); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

// decodeData accepts both bare payloads and payloads wrapped in {"data": ...}.
func decodeData(body []byte, dst any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if data, ok := envelope["data"]; ok && len(data) > 0 && string(data) != "null" {
			body = data
		}
	}
	return json.Unmarshal(body, dst)
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
		return apiErr
	}
	apiErr.Message = payload.Message
	if apiErr.Message == "" && len(payload.Error) > 0 {
		var text string
		if err := json.Unmarshal(payload.Error, &text); err == nil {
			apiErr.Message = text
		} else {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &nested); err == nil {
				apiErr.Message = nested.Message
			}
		}
	}
	return apiErr
}

func (c *Client) loggerFor(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		return ctxLogger
	}
	return &c.logger
}
