package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLIGHTS_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 10*time.Second, cfg.SearchTimeout)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, time.Hour, cfg.CalendarCacheTTL)
	require.Equal(t, 3, cfg.MaxProviders)
	require.Equal(t, 3, cfg.HealthDegradedAfter)
	require.Equal(t, 10, cfg.HealthUnavailableAfter)
	require.Equal(t, "fallback", cfg.DefaultStrategy)
	require.Equal(t, "memory", cfg.CacheDriver)
	require.Equal(t, "https://api.tequila.kiwi.com/v2", cfg.KiwiURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
search_timeout: 3s
kiwi_apikey: secret-kiwi
cache_driver: redis
max_providers: 4
`)
	t.Setenv("FLIGHTS_CONFIG", path)
	t.Setenv("MAX_PROVIDERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.SearchTimeout)
	require.Equal(t, "secret-kiwi", cfg.KiwiAPIKey)
	require.Equal(t, "redis", cfg.CacheDriver)
	require.Equal(t, 2, cfg.MaxProviders)
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("FLIGHTS_CONFIG", writeConfig(t, "cache_ttl: soon\n"))

	_, err := Load()
	require.ErrorContains(t, err, "bad cache_ttl")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("FLIGHTS_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
}
