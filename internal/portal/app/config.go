package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	BaseURL string `env:"PORTAL_BASE_URL" envDefault:"http://localhost:8080"` // Backend the API client talks to
	Origin  string `env:"PORTAL_ORIGIN"`                                      // Optional: WebAuthn origin (default: BaseURL)
	Profile string `env:"PORTAL_PROFILE"  envDefault:"default"`               // Session profile, one login per profile

	Store        string        `env:"PORTAL_STORE"         envDefault:"file"`                     // Session backend (memory, file, sqlite, redis)
	SessionFile  string        `env:"PORTAL_SESSION_FILE"`                                        // Optional: file backend path (default: <config dir>/portal/<profile>.json)
	DatabaseFile string        `env:"PORTAL_DATABASE_FILE" envDefault:"portal.db"`                // SQLite backend database file
	RedisURL     string        `env:"PORTAL_REDIS_URL"     envDefault:"redis://localhost:6379/0"` // Redis backend URL
	SessionTTL   time.Duration `env:"PORTAL_SESSION_TTL"   envDefault:"720h"`                     // Redis key expiry, 0 keeps keys forever

	RateLimit       int           `env:"PORTAL_RATE_LIMIT"        envDefault:"120"` // Requests per window, 0 disables the limiter
	RateLimitWindow time.Duration `env:"PORTAL_RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitBurst  int           `env:"PORTAL_RATE_LIMIT_BURST"  envDefault:"20"`

	DisableInfoNotices  bool          `env:"PORTAL_QUIET"`                              // Suppress success messages from the backend
	DisableErrorNotices bool          `env:"PORTAL_NO_ERROR_NOTICES"`                   // Suppress error messages from the backend
	LogoutDelay         time.Duration `env:"PORTAL_LOGOUT_DELAY"  envDefault:"3s"`      // Delay before the forced logout after a password change
	LandingRoute        string        `env:"PORTAL_LANDING_ROUTE" envDefault:"/admin"` // Where a login lands without a redirect

	PlexProduct  string        `env:"PORTAL_PLEX_PRODUCT"   envDefault:"Portal"`
	PlexClientID string        `env:"PORTAL_PLEX_CLIENT_ID"` // Optional: random per run when unset
	PlexTimeout  time.Duration `env:"PORTAL_PLEX_TIMEOUT"   envDefault:"30s"`

	Env       string `env:"ENV"        envDefault:"prod"` // Environment (dev, prod)
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"warn"` // Log level (debug, info, warn, error)
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // Log format (json, text)
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Origin == "" {
		cfg.Origin = cfg.BaseURL
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("PORTAL_BASE_URL is required")
	}
	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}
