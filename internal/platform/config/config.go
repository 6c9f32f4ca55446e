package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// State backends understood by the shell.
const (
	StateBackendSQLite = "sqlite"
	StateBackendRedis  = "redis"
	StateBackendMemory = "memory"
)

// Identity providers understood by the shell.
const (
	IdentityProviderToken  = "token"
	IdentityProviderMemory = "memory"
)

// Config is the full shell configuration. LIBRARY_API_URL is the only
// option that changes session semantics; the rest tune the process.
type Config struct {
	APIBaseURL string `env:"LIBRARY_API_URL" envDefault:"http://localhost:5000"`
	Addr       string `env:"SHELL_ADDR" envDefault:":5173"`

	Liveness LivenessConfig
	Teardown TeardownConfig
	State    StateConfig
	Identity IdentityConfig
	Redis    RedisConfig
	Log      LogConfig
}

// LivenessConfig tunes the backend health poll.
type LivenessConfig struct {
	Interval time.Duration `env:"LIVENESS_INTERVAL" envDefault:"5s"`
	Timeout  time.Duration `env:"LIVENESS_TIMEOUT" envDefault:"2s"`
}

// TeardownConfig bounds the remote sign-out call.
type TeardownConfig struct {
	SignOutTimeout time.Duration `env:"SIGNOUT_TIMEOUT" envDefault:"3s"`
	LoginPath      string        `env:"LOGIN_PATH" envDefault:"/login"`
}

// StateConfig selects where local session state is persisted.
type StateConfig struct {
	Backend    string `env:"STATE_BACKEND" envDefault:"sqlite"`
	SQLitePath string `env:"STATE_SQLITE_PATH" envDefault:"profile.db"`
	Profile    string `env:"STATE_PROFILE" envDefault:"default"`
}

// IdentityConfig selects the identity collaborator.
type IdentityConfig struct {
	Provider   string `env:"IDENTITY_PROVIDER" envDefault:"token"`
	SigningKey string `env:"IDENTITY_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string `env:"IDENTITY_ISSUER"`
}

// RedisConfig mirrors the go-redis options we override.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// FromEnv parses and validates the configuration from the environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the shell cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid LIBRARY_API_URL %q", c.APIBaseURL)
	}
	if c.Liveness.Interval <= 0 {
		return fmt.Errorf("LIVENESS_INTERVAL must be positive")
	}
	if c.Liveness.Timeout <= 0 || c.Liveness.Timeout >= c.Liveness.Interval {
		return fmt.Errorf("LIVENESS_TIMEOUT must be positive and shorter than LIVENESS_INTERVAL")
	}
	switch c.State.Backend {
	case StateBackendSQLite, StateBackendMemory:
	case StateBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis state backend")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.State.Backend)
	}
	switch c.Identity.Provider {
	case IdentityProviderToken, IdentityProviderMemory:
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.Identity.Provider)
	}
	return nil
}

// HealthURL is the well-known liveness endpoint of the backend.
func (c Config) HealthURL() string {
	return c.APIBaseURL + "/api/health"
}
