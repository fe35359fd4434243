package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "KoboPay"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultSettingsCacheTTL = time.Minute
	defaultPayoutTimeout    = 30 * time.Second
	defaultSettlePoll       = time.Minute
	defaultEventBuffer      = 256
)

// Config captures application runtime configuration loaded from environment
// variables, with an optional .env file for local development.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Gateway credentials. A channel with an empty key is simply not
	// offered; deposit requests against it get a configuration error.
	CardGatewayKey     string
	TransferGatewayKey string
	PayoutKey          string

	SettingsCacheTTL time.Duration
	PayoutTimeout    time.Duration
	SettlePoll       time.Duration
	EventBuffer      int
}

// Load reads configuration values from the environment and populates a
// Config instance.
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		CardGatewayKey:     os.Getenv("CARD_GATEWAY_KEY"),
		TransferGatewayKey: os.Getenv("TRANSFER_GATEWAY_KEY"),
		PayoutKey:          os.Getenv("PAYOUT_KEY"),
		SettingsCacheTTL:   defaultSettingsCacheTTL,
		PayoutTimeout:      defaultPayoutTimeout,
		SettlePoll:         defaultSettlePoll,
		EventBuffer:        defaultEventBuffer,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.SettingsCacheTTL, err = durationEnv("SETTINGS_CACHE_TTL", cfg.SettingsCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.PayoutTimeout, err = durationEnv("PAYOUT_TIMEOUT", cfg.PayoutTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SettlePoll, err = durationEnv("SETTLEMENT_POLL_INTERVAL", cfg.SettlePoll); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("EVENT_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EVENT_BUFFER: %w", err)
		}
		cfg.EventBuffer = n
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// durationEnv reads KEY as a Go duration or KEY_SECONDS as an integer second
// count, preferring the seconds form when both are set.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment,
// where in-memory backends may stand in for Postgres and Redis.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
