package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/tourbook/internal/backend"
	"github.com/noah-isme/tourbook/internal/common"
	"github.com/noah-isme/tourbook/internal/config"
	"github.com/noah-isme/tourbook/internal/draft"
	"github.com/noah-isme/tourbook/internal/health"
	"github.com/noah-isme/tourbook/internal/httpapi"
	"github.com/noah-isme/tourbook/internal/obs"
	"github.com/noah-isme/tourbook/internal/ratelimit"
	"github.com/noah-isme/tourbook/internal/resilience"
)

// Dependencies holds the shared clients built once at startup.
type Dependencies struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Redis         *redis.Client
	Breaker       *resilience.Breaker
	Backend       *backend.Client
	Drafts        *draft.Store
	Limiter       *limiter.Limiter
	HTTPMetrics   *obs.HTTPMetrics
	DomainMetrics *obs.DomainMetrics
	Gatherer      prometheus.Gatherer
}

// New connects to Redis and builds the backend client and draft store.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	breaker := resilience.NewBreaker(cfg.Backend.BreakerMinRequests, cfg.Backend.BreakerFailureRatio, cfg.Backend.BreakerOpenFor).
		WithTarget("backend").
		WithLogger(logger)
	backendClient, err := backend.New(backend.Options{
		BaseURL: cfg.Backend.BaseURL,
		HTTP: resilience.Client{
			HTTP:    backend.NewHTTPClient(),
			Breaker: breaker,
			Timeout: cfg.Backend.Timeout,
		},
		Cache:  backend.NewCache(rdb, cfg.CouponCacheTTL),
		Logger: logger,
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	lim, err := ratelimit.NewLimiter(rdb, cfg.RateLimit, "tourbook:ratelimit")
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	return &Dependencies{
		Config:        cfg,
		Logger:        logger,
		Redis:         rdb,
		Breaker:       breaker,
		Backend:       backendClient,
		Drafts:        draft.NewStore(rdb, cfg.DraftTTL, cfg.DraftLockTTL),
		Limiter:       lim,
		HTTPMetrics:   obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, nil),
		DomainMetrics: obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil),
		Gatherer:      prometheus.DefaultGatherer,
	}, nil
}

// Router builds the HTTP handler serving the API.
func (d *Dependencies) Router() http.Handler {
	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Backend: d.Backend,
		Drafts:  d.Drafts,
		Metrics: d.DomainMetrics,
	})
	return httpapi.NewRouter(httpapi.RouterConfig{
		Handler: handler,
		Health: health.Handler{
			Checker: health.Probes{Redis: d.Redis, Breaker: d.Breaker},
		},
		Logger:         d.Logger,
		HTTPMetrics:    d.HTTPMetrics,
		Gatherer:       d.Gatherer,
		Tracing:        d.Config.Obs.EnableTracing,
		AllowedOrigins: d.Config.CORSAllowedOrigins,
		RateLimit: ratelimit.Handler{
			Limiter: d.Limiter,
			OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
		},
		Idempotency:  common.Idem{R: d.Redis, TTL: d.Config.IdempotencyTTL},
		MaxBodyBytes: d.Config.MaxBodyBytes,
		HSTS:         d.Config.IsProduction(),
	})
}

// Close releases the Redis connection pool.
func (d *Dependencies) Close() error {
	if d == nil || d.Redis == nil {
		return nil
	}
	return d.Redis.Close()
}
