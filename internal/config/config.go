package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/money"
)

// Storage backends selectable through CART_STORAGE.
const (
	StorageMemory   = "memory"
	StorageSession  = "session"
	StorageDatabase = "database"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	RateLimit          string

	Cart    CartConfig
	Cleanup CleanupConfig
	Catalog CatalogConfig
	Obs     ObsConfig
}

// CartConfig controls pricing, persistence and merging.
type CartConfig struct {
	CompoundDiscounts bool
	Currency          string
	Locale            string
	EventsEnabled     bool
	EventsQueue       string
	Storage           string
	SessionTTL        time.Duration
	LockTTL           time.Duration
	MergeStrategy     string
	MergeClearSource  bool
}

// CleanupConfig controls the abandoned cart housekeeping job.
type CleanupConfig struct {
	Enabled        bool
	Lifetime       time.Duration
	ForceDeleteAll bool
	Schedule       string
}

// CatalogConfig points at the remote product catalog.
type CatalogConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ObsConfig controls logging, tracing and metrics.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	EnableTracing    bool
	OTLPEndpoint     string
	SamplingRatio    float64
	MetricsNamespace string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RateLimit:          valueOrDefault(k.String("RATE_LIMIT"), "300-M"),
		Cart: CartConfig{
			CompoundDiscounts: parseBool(k.String("CART_COMPOUND_DISCOUNTS"), false),
			Currency:          strings.ToUpper(valueOrDefault(k.String("CART_CURRENCY"), "USD")),
			Locale:            valueOrDefault(k.String("CART_LOCALE"), money.DefaultLocale),
			EventsEnabled:     parseBool(k.String("CART_EVENTS_ENABLED"), true),
			EventsQueue:       valueOrDefault(k.String("CART_EVENTS_QUEUE"), "events"),
			Storage:           strings.ToLower(valueOrDefault(k.String("CART_STORAGE"), StorageMemory)),
			SessionTTL:        parseDuration(k.String("CART_SESSION_TTL"), "168h"),
			LockTTL:           parseDuration(k.String("CART_LOCK_TTL"), "10s"),
			MergeStrategy:     strings.ToLower(valueOrDefault(k.String("CART_MERGE_STRATEGY"), cart.StrategySum)),
			MergeClearSource:  parseBool(k.String("CART_MERGE_CLEAR_SOURCE"), true),
		},
		Cleanup: CleanupConfig{
			Enabled:        parseBool(k.String("CART_CLEANUP_ENABLED"), false),
			Lifetime:       parseDuration(k.String("CART_CLEANUP_LIFETIME"), "720h"),
			ForceDeleteAll: parseBool(k.String("CART_CLEANUP_FORCE_DELETE_ALL"), false),
			Schedule:       valueOrDefault(k.String("CART_CLEANUP_SCHEDULE"), "@daily"),
		},
		Catalog: CatalogConfig{
			BaseURL:  strings.TrimSpace(k.String("CATALOG_BASE_URL")),
			APIKey:   strings.TrimSpace(k.String("CATALOG_API_KEY")),
			Timeout:  parseDuration(k.String("CATALOG_TIMEOUT"), "5s"),
			CacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACE_SAMPLING_RATIO"), 1),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "flexicart"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if !money.ValidCurrency(c.Cart.Currency) {
		errs = append(errs, fmt.Errorf("CART_CURRENCY %q is not an ISO 4217 code", c.Cart.Currency))
	}
	if _, err := cart.StrategyFor(c.Cart.MergeStrategy); err != nil {
		errs = append(errs, fmt.Errorf("CART_MERGE_STRATEGY: %w", err))
	}
	switch c.Cart.Storage {
	case StorageMemory:
	case StorageSession:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for session storage"))
		}
	case StorageDatabase:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for database storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("CART_STORAGE %q must be one of memory, session, database", c.Cart.Storage))
	}
	if c.Cleanup.Enabled && c.Cart.Storage == StorageMemory {
		errs = append(errs, errors.New("CART_CLEANUP_ENABLED requires session or database storage"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// CartOptions converts the cart settings into engine options.
func (c *Config) CartOptions() cart.Options {
	return cart.Options{
		Currency:          c.Cart.Currency,
		CompoundDiscounts: c.Cart.CompoundDiscounts,
		EventsEnabled:     c.Cart.EventsEnabled,
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
