package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"HTTP_ADDR", "ENVIRONMENT", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "LOG_ROTATION",
	"NOMINATIM_URL", "OSRM_URL", "GEOCODER_LANGUAGE", "HTTP_USER_AGENT", "UPSTREAM_TIMEOUT",
	"SESSION_TTL", "SESSION_CLEANUP_INTERVAL", "REDIS_URL", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.NominatimURL)
	assert.Equal(t, "https://router.project-osrm.org", cfg.OSRMURL)
	assert.Equal(t, "fa", cfg.GeocoderLanguage)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.OTelEnabled)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("NOMINATIM_URL", "http://geo.local")
	t.Setenv("OSRM_URL", "http://osrm.local")
	t.Setenv("HTTP_USER_AGENT", "ridemap-test/0.1")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.True(t, cfg.OTelEnabled)

	geo := cfg.Geocoding()
	assert.Equal(t, "http://geo.local", geo.BaseURL)
	assert.Equal(t, "ridemap-test/0.1", geo.UserAgent)
	assert.Equal(t, 3*time.Second, geo.Timeout)

	route := cfg.Routing()
	assert.Equal(t, "http://osrm.local", route.BaseURL)
	assert.Equal(t, "driving", route.Profile)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	t.Setenv("OTEL_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.False(t, cfg.OTelEnabled)
}

func TestValidate(t *testing.T) {
	clearConfigEnv(t)
	cfg := Load()
	cfg.LogFormat = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.SessionTTL = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OSRM_URL=http://from-dotenv\n"), 0o600))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("OSRM_URL") })

	assert.Equal(t, "http://from-dotenv", Load().OSRMURL)
}
