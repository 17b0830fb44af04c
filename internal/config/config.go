package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	MetricsCacheTTLSeconds   int
	DefaultMetricsDays       int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	RecurringIntervalSeconds int
	LogLevel                 string
	LogFormat                string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("METRICS_CACHE_TTL_SECONDS", 30)
	v.SetDefault("DEFAULT_METRICS_DAYS", 30)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("RECURRING_PAYMENT_INTERVAL_SECONDS", 300)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.AutomaticEnv()

	return Config{
		Port:                     v.GetString("PORT"),
		AllowedOrigin:            v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:              strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:                strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		MetricsCacheTTLSeconds:   positiveOr(v.GetInt("METRICS_CACHE_TTL_SECONDS"), 30),
		DefaultMetricsDays:       positiveOr(v.GetInt("DEFAULT_METRICS_DAYS"), 30),
		AuthSecret:               strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:    positiveOr(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 480),
		RecurringIntervalSeconds: positiveOr(v.GetInt("RECURRING_PAYMENT_INTERVAL_SECONDS"), 300),
		LogLevel:                 strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:                strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) MetricsCacheTTL() time.Duration {
	return time.Duration(c.MetricsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RecurringInterval() time.Duration {
	return time.Duration(c.RecurringIntervalSeconds) * time.Second
}

func positiveOr(value, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}
