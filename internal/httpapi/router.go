package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tourbook/internal/common"
	"github.com/noah-isme/tourbook/internal/health"
	"github.com/noah-isme/tourbook/internal/obs"
	"github.com/noah-isme/tourbook/internal/ratelimit"
	"github.com/noah-isme/tourbook/internal/security"
)

// RouterConfig collects what the HTTP surface needs.
type RouterConfig struct {
	Handler     *Handler
	Health      health.Handler
	Logger      zerolog.Logger
	HTTPMetrics *obs.HTTPMetrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer       prometheus.Gatherer
	Tracing        bool
	AllowedOrigins []string
	RateLimit      ratelimit.Handler
	Idempotency    common.Idem
	MaxBodyBytes   int64
	HSTS           bool
}

// NewRouter assembles the middleware chain and routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: cfg.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{EnableHSTS: cfg.HSTS}.Middleware)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)

	h := cfg.Handler
	r.Route("/v1", func(v chi.Router) {
		v.Use(cfg.RateLimit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

		v.Post("/quote", h.Quote)
		v.Route("/drafts", func(d chi.Router) {
			d.Post("/", h.CreateDraft)
			d.Route("/{draftID}", func(one chi.Router) {
				one.Get("/", h.GetDraft)
				one.Delete("/", h.DeleteDraft)
				one.Put("/schedule", h.SelectSchedule)
				one.Post("/passengers/{category}/count", h.ChangeCount)
				one.Put("/passengers/{category}/{index}", h.UpdatePassenger)
				one.Post("/passengers/{category}/{index}/validate", h.ValidatePassenger)
				one.Put("/contact", h.UpdateContact)
				one.Put("/coupon", h.SelectCoupon)
				one.Delete("/coupon", h.RemoveCoupon)
				one.With(cfg.Idempotency.Middleware).Post("/submit", h.Submit)
			})
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
