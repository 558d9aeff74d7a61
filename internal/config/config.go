// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/meetsmatch/ridemap/internal/geocoding"
	"github.com/meetsmatch/ridemap/internal/routing"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	Environment string

	LogLevel    string
	LogFormat   string
	LogOutput   string
	LogRotation bool

	NominatimURL     string
	OSRMURL          string
	GeocoderLanguage string
	UserAgent        string
	UpstreamTimeout  time.Duration

	SessionTTL      time.Duration
	CleanupInterval time.Duration
	RedisURL        string

	OTelEnabled  bool
	OTelEndpoint string
}

// LoadDotEnv reads variables from files (default ".env") into the process
// environment without overriding ones already set. A missing file is not an
// error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// Load loads configuration from environment variables.
// Optional variables with defaults: HTTP_ADDR, ENVIRONMENT, LOG_*, NOMINATIM_URL,
// OSRM_URL, GEOCODER_LANGUAGE, HTTP_USER_AGENT, UPSTREAM_TIMEOUT, SESSION_TTL,
// SESSION_CLEANUP_INTERVAL, REDIS_URL, OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT
func Load() Config {
	geo := geocoding.DefaultConfig()
	route := routing.DefaultConfig()
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		Environment: envOr("ENVIRONMENT", "development"),

		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		LogOutput:   envOr("LOG_OUTPUT", "stdout"),
		LogRotation: envBool("LOG_ROTATION", false),

		NominatimURL:     envOr("NOMINATIM_URL", geo.BaseURL),
		OSRMURL:          envOr("OSRM_URL", route.BaseURL),
		GeocoderLanguage: envOr("GEOCODER_LANGUAGE", geo.Language),
		UserAgent:        envOr("HTTP_USER_AGENT", geo.UserAgent),
		UpstreamTimeout:  envDuration("UPSTREAM_TIMEOUT", geo.Timeout),

		SessionTTL:      envDuration("SESSION_TTL", 30*time.Minute),
		CleanupInterval: envDuration("SESSION_CLEANUP_INTERVAL", time.Minute),
		RedisURL:        os.Getenv("REDIS_URL"),

		OTelEnabled:  envBool("OTEL_ENABLED", false),
		OTelEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Geocoding returns the reverse geocoding client settings.
func (c Config) Geocoding() geocoding.Config {
	return geocoding.Config{
		BaseURL:   c.NominatimURL,
		UserAgent: c.UserAgent,
		Language:  c.GeocoderLanguage,
		Timeout:   c.UpstreamTimeout,
	}
}

// Routing returns the routing client settings.
func (c Config) Routing() routing.Config {
	cfg := routing.DefaultConfig()
	cfg.BaseURL = c.OSRMURL
	cfg.UserAgent = c.UserAgent
	cfg.Timeout = c.UpstreamTimeout
	return cfg
}

// Logging returns the logger settings.
func (c Config) Logging() *telemetry.LogConfig {
	cfg := telemetry.DefaultLogConfig()
	cfg.Level = telemetry.LogLevel(c.LogLevel)
	cfg.Format = c.LogFormat
	cfg.Output = c.LogOutput
	cfg.Rotation = c.LogRotation
	return cfg
}

// Telemetry returns the OpenTelemetry settings.
func (c Config) Telemetry(serviceName, version string) *telemetry.Config {
	return &telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		Enabled:        c.OTelEnabled,
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		fmt.Printf("WARNING: %s=%q is not a boolean, using %v\n", key, value, fallback)
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Printf("WARNING: %s=%q is not a duration, using %v\n", key, value, fallback)
		return fallback
	}
	return d
}
