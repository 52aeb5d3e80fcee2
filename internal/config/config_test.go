package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourbook/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"BACKEND_BASE_URL":              "http://backend.local:3000/api/",
		"REDIS_URL":                     "redis://localhost:6379/0",
		"APP_ENV":                       "",
		"PORT":                          "",
		"BACKEND_TIMEOUT":               "",
		"BACKEND_BREAKER_FAILURE_RATIO": "",
		"DRAFT_TTL":                     "",
		"DRAFT_LOCK_TTL":                "",
		"RATE_LIMIT":                    "",
		"MAX_BODY_BYTES":                "",
		"IDEMPOTENCY_TTL":               "",
		"CORS_ALLOWED_ORIGINS":          "",
		"OBS_ENABLE_TRACING":            "",
		"OBS_OTLP_ENDPOINT":             "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "http://backend.local:3000/api", cfg.Backend.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	require.Equal(t, 0.5, cfg.Backend.BreakerFailureRatio)
	require.Equal(t, 24*time.Hour, cfg.DraftTTL)
	require.Equal(t, 15*time.Second, cfg.DraftLockTTL)
	require.Equal(t, "120-M", cfg.RateLimit)
	require.Equal(t, int64(64<<10), cfg.MaxBodyBytes)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.False(t, cfg.Obs.EnableTracing)
	require.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["APP_ENV"] = "production"
	env["PORT"] = ":9000"
	env["BACKEND_TIMEOUT"] = "750ms"
	env["DRAFT_TTL"] = "2h"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, https://b.example,"
	env["OBS_ENABLE_TRACING"] = "true"
	env["OBS_OTLP_ENDPOINT"] = "http://collector:4318"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.Equal(t, 750*time.Millisecond, cfg.Backend.Timeout)
	require.Equal(t, 2*time.Hour, cfg.DraftTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.Obs.EnableTracing)
}

func TestLoadRequiresBackendAndRedis(t *testing.T) {
	env := baseEnv()
	env["BACKEND_BASE_URL"] = ""
	env["REDIS_URL"] = ""
	_, err := config.LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BACKEND_BASE_URL is required")
	require.Contains(t, err.Error(), "REDIS_URL is required")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := baseEnv()
	env["BACKEND_BASE_URL"] = "backend.local"
	env["BACKEND_BREAKER_FAILURE_RATIO"] = "1.5"
	env["OBS_ENABLE_TRACING"] = "1"
	_, err := config.LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "absolute http(s) url")
	require.Contains(t, err.Error(), "FAILURE_RATIO")
	require.Contains(t, err.Error(), "OBS_OTLP_ENDPOINT")
}

func TestLoadRequiresLockToOutliveBackendCalls(t *testing.T) {
	env := baseEnv()
	env["DRAFT_LOCK_TTL"] = "2s"
	_, err := config.LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "DRAFT_LOCK_TTL (2s) must exceed BACKEND_TIMEOUT (5s)")

	env["BACKEND_TIMEOUT"] = "1s"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.DraftLockTTL)
}
