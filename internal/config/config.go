// Package config assembles runtime settings from an optional .env file, an
// optional TOML file named by GATEHOUSE_CONFIG and environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every tunable of the service.
type Config struct {
	HTTPAddr    string `toml:"http_addr"`
	GRPCAddr    string `toml:"grpc_addr"`
	DatabaseURL string `toml:"database_url"`

	SessionTTL          time.Duration `toml:"session_ttl"`
	SessionReapInterval time.Duration `toml:"session_reap_interval"`
	BcryptCost          int           `toml:"bcrypt_cost"`
	AdminRoles          []string      `toml:"admin_roles"`

	CookieName   string `toml:"cookie_name"`
	CookieSecure bool   `toml:"cookie_secure"`

	RateBurst  int     `toml:"rate_burst"`
	RatePerSec float64 `toml:"rate_per_sec"`

	AdminEmail    string `toml:"admin_email"`
	AdminPassword string `toml:"admin_password"`
	SeedDemo      bool   `toml:"seed_demo"`

	LogLevel string `toml:"log_level"`
	LogDev   bool   `toml:"log_dev"`
	// LogFile additionally writes JSON logs to a daily rotated file.
	LogFile string `toml:"log_file"`

	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		SessionTTL:      time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
		AdminRoles:      []string{"admin"},
		CookieName:      "session_token",
		RateBurst:       10,
		RatePerSec:      5,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads .env (if present), the TOML file named by GATEHOUSE_CONFIG (if
// set) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadWith(os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup("GATEHOUSE_CONFIG"); ok && strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("GRPC_ADDR", &cfg.GRPCAddr)
	str("DATABASE_URL", &cfg.DatabaseURL)
	dur("SESSION_TTL", &cfg.SessionTTL)
	dur("SESSION_REAP_INTERVAL", &cfg.SessionReapInterval)
	num("BCRYPT_COST", &cfg.BcryptCost)
	if v, ok := lookup("ADMIN_ROLES"); ok && strings.TrimSpace(v) != "" {
		cfg.AdminRoles = splitList(v)
	}
	str("COOKIE_NAME", &cfg.CookieName)
	flag("COOKIE_SECURE", &cfg.CookieSecure)
	num("RATE_BURST", &cfg.RateBurst)
	flt("RATE_PER_SEC", &cfg.RatePerSec)
	str("ADMIN_EMAIL", &cfg.AdminEmail)
	if v, ok := lookup("ADMIN_PASSWORD"); ok {
		cfg.AdminPassword = v
	}
	flag("SEED_DEMO", &cfg.SeedDemo)
	str("LOG_LEVEL", &cfg.LogLevel)
	flag("LOG_DEV", &cfg.LogDev)
	str("LOG_FILE", &cfg.LogFile)
	dur("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.SessionReapInterval < 0 {
		errs = append(errs, errors.New("SESSION_REAP_INTERVAL must not be negative"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if len(c.AdminRoles) == 0 {
		errs = append(errs, errors.New("ADMIN_ROLES must name at least one role"))
	}
	if strings.TrimSpace(c.CookieName) == "" {
		errs = append(errs, errors.New("COOKIE_NAME must not be empty"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("RATE_BURST and RATE_PER_SEC must be positive"))
	}
	if c.AdminEmail != "" && c.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
