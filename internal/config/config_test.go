package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWith(env(nil))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, time.Hour, cfg.SessionTTL)
	require.Equal(t, "session_token", cfg.CookieName)
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, []string{"admin"}, cfg.AdminRoles)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatehouse.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr = ":7000"
session_ttl = "30m"
bcrypt_cost = 6
seed_demo = true
`), 0o600))

	cfg, err := LoadWith(env(map[string]string{
		"GATEHOUSE_CONFIG": path,
		"HTTP_ADDR":        ":9000",
		"ADMIN_ROLES":      "admin, superadmin",
		"COOKIE_SECURE":    "true",
		"LOG_FILE":         "/var/log/gatehouse.log",
	}))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, 6, cfg.BcryptCost)
	require.True(t, cfg.SeedDemo)
	require.True(t, cfg.CookieSecure)
	require.Equal(t, []string{"admin", "superadmin"}, cfg.AdminRoles)
	require.Equal(t, "/var/log/gatehouse.log", cfg.LogFile)
}

func TestInvalidValues(t *testing.T) {
	_, err := LoadWith(env(map[string]string{"SESSION_TTL": "soon"}))
	require.ErrorContains(t, err, "SESSION_TTL")

	_, err = LoadWith(env(map[string]string{"SESSION_TTL": "-1m"}))
	require.ErrorContains(t, err, "SESSION_TTL must be positive")

	_, err = LoadWith(env(map[string]string{"BCRYPT_COST": "99"}))
	require.ErrorContains(t, err, "BCRYPT_COST")

	_, err = LoadWith(env(map[string]string{"ADMIN_EMAIL": "root@example.com"}))
	require.ErrorContains(t, err, "ADMIN_PASSWORD")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := LoadWith(env(map[string]string{"GATEHOUSE_CONFIG": filepath.Join(t.TempDir(), "absent.toml")}))
	require.Error(t, err)
}
