// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds all application configuration
type Config struct {
	Env      string
	Port     int
	LogLevel string

	Database DatabaseConfig
	Auth     AuthConfig

	CORSOrigins     []string
	AuditInterval   time.Duration
	EnableScenarios bool
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Driver     string
	SQLitePath string
	MySQL      MySQLConfig
}

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// IsDevelopment reports whether the server runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		Env:      r.str("APP_ENV", "development"),
		Port:     r.int("PORT", 8080),
		LogLevel: r.str("LOG_LEVEL", ""),
		Database: DatabaseConfig{
			Driver:     r.str("DB_DRIVER", DriverSQLite),
			SQLitePath: r.str("SQLITE_PATH", "supplychain.db"),
			MySQL: MySQLConfig{
				Host:     r.str("MYSQL_HOST", "localhost"),
				Port:     r.int("MYSQL_PORT", 3306),
				User:     r.str("MYSQL_USER", "root"),
				Password: r.str("MYSQL_PASSWORD", ""),
				Database: r.str("MYSQL_DATABASE", "food_traceability"),
			},
		},
		Auth: AuthConfig{
			JWTSecret: r.str("JWT_SECRET", ""),
			TokenTTL:  r.duration("JWT_TTL", 24*time.Hour),
		},
		CORSOrigins:     r.list("CORS_ORIGINS", []string{"*"}),
		AuditInterval:   r.duration("AUDIT_INTERVAL", 0),
		EnableScenarios: r.bool("ENABLE_SCENARIOS", false),
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize canonicalizes values that may come from env or flags.
func (c *Config) Normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Env = strings.ToLower(c.Env)
}

// Validate checks cross-field rules. Call again after applying flag overrides.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMySQL, c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRET is required")
		}
		c.Auth.JWTSecret = "dev-secret-change-me"
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// duration accepts Go durations ("90s", "1h") or plain seconds.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) list(key string, def []string) []string {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
