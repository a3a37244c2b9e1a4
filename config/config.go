package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port   string
	DBURL  string
	DBPath string // sqlite file used when DB_URL is empty

	JWTSecret    string
	OIDCIssuer   string
	OIDCClientID string

	RedisURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeProductID     string

	CORSOrigin string
	LogLevel   string
	LogFormat  string

	RequestTimeout    time.Duration
	ReconcileInterval time.Duration
	ViewCacheTTL      time.Duration
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found. Using system environment variables.")
	}
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		DBURL:               getEnv("DB_URL", ""),
		DBPath:              getEnv("DB_PATH", "salon-billing.db"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		OIDCIssuer:          getEnv("OIDC_ISSUER", ""),
		OIDCClientID:        getEnv("OIDC_CLIENT_ID", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProductID:     getEnv("STRIPE_PRODUCT_ID", ""),
		CORSOrigin:          getEnv("CORS_ORIGIN", "*"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "auto"),
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ViewCacheTTL, err = durationEnv("VIEW_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" && cfg.OIDCIssuer == "" {
		return Config{}, fmt.Errorf("missing required environment variable: JWT_SECRET or OIDC_ISSUER")
	}
	if cfg.OIDCIssuer != "" && cfg.OIDCClientID == "" {
		return Config{}, fmt.Errorf("missing required environment variable: OIDC_CLIENT_ID")
	}
	return cfg, nil
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, raw)
	}
	return d, nil
}
