package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DEFAULT_METRICS_DAYS", "METRICS_CACHE_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES", "RECURRING_PAYMENT_INTERVAL_SECONDS", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 30, cfg.DefaultMetricsDays)
	assert.Equal(t, 30*time.Second, cfg.MetricsCacheTTL())
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, 5*time.Minute, cfg.RecurringInterval())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("REDIS_ADDR", " cache:6379 ")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DEFAULT_METRICS_DAYS", "7")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")

	cfg := Load()
	assert.Equal(t, ":9191", cfg.Address())
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 7, cfg.DefaultMetricsDays)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	t.Setenv("METRICS_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")

	cfg := Load()
	assert.Equal(t, 30, cfg.MetricsCacheTTLSeconds)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}
