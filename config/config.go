package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPublishableKey is the test-mode key the embedded application ships with.
const DefaultPublishableKey = "pk_test_5PnH5aLwZzbYlDjsGijmGhGz"

// ErrInvalid wraps every configuration value that fails to parse.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Stripe  StripeConfig
	Breaker BreakerConfig
	Server  ServerConfig
	Redis   RedisConfig
	Log     LogConfig
}

type StripeConfig struct {
	PublishableKey string
	APIURL         string
	// Provider is "stripe" or "sandbox".
	Provider       string
	RequestTimeout time.Duration
}

type BreakerConfig struct {
	// MaxFailures of zero disables the breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
}

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	// URL left empty selects the in-memory mailbox.
	URL string
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(name, def string) string {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		Stripe: StripeConfig{
			PublishableKey: get("STRIPE_PUBLISHABLE_KEY", DefaultPublishableKey),
			APIURL:         get("STRIPE_API_URL", "https://api.stripe.com"),
			Provider:       strings.ToLower(get("TOKEN_PROVIDER", "stripe")),
		},
		Server: ServerConfig{
			Port: get("PORT", "8080"),
		},
		Redis: RedisConfig{
			URL: get("REDIS_URL", ""),
		},
		Log: LogConfig{
			Format: strings.ToLower(get("LOG_FORMAT", "json")),
		},
	}

	var err error
	if cfg.Stripe.RequestTimeout, err = parseDuration("REQUEST_TIMEOUT", get("REQUEST_TIMEOUT", "30s")); err != nil {
		return nil, err
	}
	if cfg.Breaker.OpenTimeout, err = parseDuration("BREAKER_OPEN_TIMEOUT", get("BREAKER_OPEN_TIMEOUT", "30s")); err != nil {
		return nil, err
	}
	maxFailures, err := strconv.ParseUint(get("BREAKER_MAX_FAILURES", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: BREAKER_MAX_FAILURES: %v", ErrInvalid, err)
	}
	cfg.Breaker.MaxFailures = uint32(maxFailures)

	if err := cfg.Log.Level.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalid, err)
	}

	switch cfg.Stripe.Provider {
	case "stripe", "sandbox":
	default:
		return nil, fmt.Errorf("%w: TOKEN_PROVIDER must be stripe or sandbox, got %q", ErrInvalid, cfg.Stripe.Provider)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return nil, fmt.Errorf("%w: LOG_FORMAT must be json or text, got %q", ErrInvalid, cfg.Log.Format)
	}

	return cfg, nil
}

// NewLogger builds the process logger described by the config.
func (c LogConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseDuration(name, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
	}
	return d, nil
}
