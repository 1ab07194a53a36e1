// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the board server needs at startup.
type Config struct {
	Port           int           `env:"PORT" envDefault:"3001"`
	FrontendOrigin string        `env:"FRONTEND_ORIGIN" envDefault:"http://localhost:5173"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://omocrm.pro,http://omocrm.pro,https://www.omocrm.pro,http://www.omocrm.pro,http://localhost:5173"`
	SessionSecret  string        `env:"SESSION_SECRET" envDefault:"change-me-in-production"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SessionCookie  string        `env:"SESSION_COOKIE" envDefault:"omocrm.sid"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	Login          string        `env:"LOGIN"`
	Password       string        `env:"PASSWORD"`
	AuthPolicy     string        `env:"AUTH_POLICY" envDefault:"server-session"`

	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	DatabaseURL      string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/omocrm?sslmode=disable"`
	ConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	BoardsTable      string `env:"BOARDS_TABLE" envDefault:"boards"`

	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	BoardCacheTTL time.Duration `env:"BOARD_CACHE_TTL" envDefault:"5m"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom parses cfg from the given variables only. Used by tests and tools.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid SESSION_TTL: must be greater than zero")
	}
	if c.BoardCacheTTL < 0 {
		return fmt.Errorf("invalid BOARD_CACHE_TTL: must not be negative")
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return fmt.Errorf("invalid SESSION_COOKIE: empty")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins returns the CORS allow-list: the frontend origin first, then the
// extra origins, trimmed and without duplicates.
func (c Config) Origins() []string {
	seen := make(map[string]struct{}, len(c.AllowedOrigins)+1)
	out := make([]string, 0, len(c.AllowedOrigins)+1)
	for _, o := range append([]string{c.FrontendOrigin}, c.AllowedOrigins...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
