// Package config loads process configuration for the whisper binary.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/lborres/whisper/providers"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrSecretMissing      = errors.New("WHISPER_SECRET is required")
	ErrUnknownDriver      = errors.New("WHISPER_DB_DRIVER must be sqlite or postgres")
	ErrDatabaseURLMissing = errors.New("WHISPER_DATABASE_URL is required for postgres")
)

type Config struct {
	Addr    string `env:"WHISPER_ADDR"     envDefault:":3000"`
	BaseURL string `env:"WHISPER_BASE_URL" envDefault:"http://localhost:3000"`
	Secret  string `env:"WHISPER_SECRET"`

	DBDriver    string `env:"WHISPER_DB_DRIVER"    envDefault:"sqlite"`
	DatabaseURL string `env:"WHISPER_DATABASE_URL"`
	SQLitePath  string `env:"WHISPER_SQLITE_PATH"  envDefault:"whisper.db"`
	// RedisURL moves sessions to redis when set
	RedisURL string `env:"WHISPER_REDIS_URL"`

	SessionMaxAge time.Duration `env:"WHISPER_SESSION_MAX_AGE" envDefault:"24h"`
	CacheTTL      time.Duration `env:"WHISPER_CACHE_TTL"       envDefault:"5m"`
	CacheSize     int           `env:"WHISPER_CACHE_SIZE"      envDefault:"500"`
	CookieSecure  bool          `env:"WHISPER_COOKIE_SECURE"`
	SweepInterval time.Duration `env:"WHISPER_SWEEP_INTERVAL"  envDefault:"10m"`

	LogLevel  string `env:"WHISPER_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"WHISPER_LOG_FORMAT" envDefault:"auto"`

	GoogleClientID     string `env:"WHISPER_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"WHISPER_GOOGLE_CLIENT_SECRET"`
	FacebookAppID      string `env:"WHISPER_FACEBOOK_APP_ID"`
	FacebookAppSecret  string `env:"WHISPER_FACEBOOK_APP_SECRET"`
}

// Load reads WHISPER_* variables and validates them
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return ErrSecretMissing
	}

	c.DBDriver = strings.ToLower(c.DBDriver)
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return ErrDatabaseURLMissing
		}
	default:
		return fmt.Errorf("%w, got %q", ErrUnknownDriver, c.DBDriver)
	}

	return nil
}

// CallbackURL is where provider p sends the browser back to
func (c *Config) CallbackURL(p string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/" + p + "/secrets"
}

func (c *Config) Google() providers.Config {
	return providers.Config{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		CallbackURL:  c.CallbackURL("google"),
	}
}

func (c *Config) Facebook() providers.Config {
	return providers.Config{
		ClientID:     c.FacebookAppID,
		ClientSecret: c.FacebookAppSecret,
		CallbackURL:  c.CallbackURL("facebook"),
	}
}
