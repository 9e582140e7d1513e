// Package config loads process configuration from the environment, reading a
// .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	TransportLocal = "local"
	TransportRedis = "redis"
)

type Config struct {
	Port        string
	CORSOrigins []string

	StoreDriver string
	DatabaseURL string

	RedisAddr      string
	EventTransport string
	EventChannel   string
	AlertsEnabled  bool

	JWTSecret string

	CommissionRate    decimal.Decimal
	PlatformAccountID string

	LogLevel  string
	LogFormat string
}

// Load reads the given env files (".env" when none are named; a missing file
// is not an error) and then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:              get("PORT", "8080"),
		StoreDriver:       get("STORE_DRIVER", StorePostgres),
		DatabaseURL:       get("DATABASE_URL", ""),
		RedisAddr:         redisAddr(get),
		EventTransport:    get("EVENT_TRANSPORT", TransportLocal),
		EventChannel:      get("EVENT_CHANNEL", "chefbid:events"),
		JWTSecret:         getenv("JWT_SECRET"),
		PlatformAccountID: get("PLATFORM_ACCOUNT_ID", ""),
		LogLevel:          get("LOG_LEVEL", "info"),
		LogFormat:         get("LOG_FORMAT", "json"),
	}

	if cfg.DatabaseURL == "" && getenv("DB_HOST") != "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			getenv("DB_USER"), getenv("DB_PASSWORD"), getenv("DB_HOST"), get("DB_PORT", "5432"), getenv("DB_NAME"))
	}

	var err error
	if cfg.AlertsEnabled, err = strconv.ParseBool(get("ALERTS_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("ALERTS_ENABLED: %w", err)
	}
	if cfg.CommissionRate, err = decimal.NewFromString(get("COMMISSION_RATE", "0.05")); err != nil {
		return Config{}, fmt.Errorf("COMMISSION_RATE: %w", err)
	}

	for _, o := range strings.Split(get("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	return cfg, cfg.Validate()
}

func redisAddr(get func(key, def string) string) string {
	if addr := get("REDIS_ADDR", ""); addr != "" {
		return addr
	}
	if host := get("REDIS_HOST", ""); host != "" {
		return host + ":" + get("REDIS_PORT", "6379")
	}
	return ""
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL or DB_HOST is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.EventTransport {
	case TransportLocal:
	case TransportRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR or REDIS_HOST is required for the redis event transport")
		}
	default:
		return fmt.Errorf("unknown EVENT_TRANSPORT %q", c.EventTransport)
	}

	if c.AlertsEnabled && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR or REDIS_HOST is required when ALERTS_ENABLED is set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMMISSION_RATE must be within [0, 1], got %s", c.CommissionRate)
	}
	return nil
}
