// Package config loads service configuration from environment variables.
// A .env file in the working directory is read first when present; real
// environment variables always win.
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

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Identity  IdentityConfig
	Data      DataConfig
	Providers ProvidersConfig
	Routes    RoutesConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name                string
	Version             string
	Env                 string
	Port                string
	ShutdownTimeout     string
	ReadinessDrainDelay string
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level string
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled  bool
	Endpoint string
}

// DatabaseConfig holds the Postgres connection of the data provider.
type DatabaseConfig struct {
	Host           string
	Port           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int32

	// RLSRole is assumed inside each profile transaction so row level
	// security policies apply. Empty keeps the connecting role.
	RLSRole string
}

// DSN returns a pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig holds the session persistence backend. An empty URL selects
// the in-memory backend.
type RedisConfig struct {
	URL    string
	Prefix string
}

// SessionConfig controls the client session window.
type SessionConfig struct {
	TTL        string
	CookieName string
	Secure     bool
}

// IdentityConfig points at the identity provider REST API.
type IdentityConfig struct {
	BaseURL      string
	TokenBaseURL string
	APIKey       string
}

// DataConfig points at the database provider auth API.
type DataConfig struct {
	BaseURL   string
	AnonKey   string
	JWTSecret string
}

// ProvidersConfig holds transport policy shared by both provider clients.
type ProvidersConfig struct {
	Timeout                string
	RetryTransportAttempts int
	BreakerFailures        uint32
	BreakerOpenFor         string
}

// RoutesConfig configures the view table and sign-up policy.
type RoutesConfig struct {
	File        string
	SignupRoles []string
}

// Load reads configuration from the environment.
func Load() *Config {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			Name:                getEnv("SERVICE_NAME", "event-gate"),
			Version:             getEnv("SERVICE_VERSION", "dev"),
			Env:                 getEnv("ENV", "development"),
			Port:                getEnv("PORT", "8080"),
			ShutdownTimeout:     getEnv("SHUTDOWN_TIMEOUT", "10s"),
			ReadinessDrainDelay: getEnv("READINESS_DRAIN_DELAY", "5s"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvBool("TRACING_ENABLED", false),
			Endpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SampleRate: getEnvFloat("OTEL_SAMPLE_RATE", 0.1),
		},
		Profiling: ProfilingConfig{
			Enabled:  getEnvBool("PROFILING_ENABLED", false),
			Endpoint: getEnv("PYROSCOPE_ENDPOINT", "http://localhost:4040"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Name:           getEnv("DB_NAME", "postgres"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			SSLMode:        getEnv("DB_SSLMODE", "require"),
			MaxConnections: int32(getEnvInt("DB_POOL_MAX_CONNECTIONS", 10)),
			RLSRole:        getEnv("DB_RLS_ROLE", "authenticated"),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Prefix: getEnv("REDIS_SESSION_PREFIX", "eventgate:session:"),
		},
		Session: SessionConfig{
			TTL:        getEnv("SESSION_TTL", "24h"),
			CookieName: getEnv("SESSION_COOKIE", "eventgate_client"),
			Secure:     getEnvBool("SESSION_COOKIE_SECURE", true),
		},
		Identity: IdentityConfig{
			BaseURL:      getEnv("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com"),
			TokenBaseURL: getEnv("IDENTITY_TOKEN_BASE_URL", "https://securetoken.googleapis.com"),
			APIKey:       getEnv("IDENTITY_API_KEY", ""),
		},
		Data: DataConfig{
			BaseURL:   getEnv("DATA_BASE_URL", ""),
			AnonKey:   getEnv("DATA_ANON_KEY", ""),
			JWTSecret: getEnv("DATA_JWT_SECRET", ""),
		},
		Providers: ProvidersConfig{
			Timeout:                getEnv("PROVIDER_TIMEOUT", "10s"),
			RetryTransportAttempts: getEnvInt("RETRY_TRANSPORT_ATTEMPTS", 1),
			BreakerFailures:        uint32(getEnvInt("BREAKER_FAILURES", 5)),
			BreakerOpenFor:         getEnv("BREAKER_OPEN_FOR", "30s"),
		},
		Routes: RoutesConfig{
			File:        getEnv("ROUTES_FILE", ""),
			SignupRoles: getEnvList("SIGNUP_ROLES", []string{"attendee", "organizer", "sponsor"}),
		},
	}
}

// Validate checks required values and that durations parse.
func (c *Config) Validate() error {
	var errs []error
	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.Identity.APIKey == "" {
		errs = append(errs, errors.New("IDENTITY_API_KEY is required"))
	}
	if c.Data.BaseURL == "" {
		errs = append(errs, errors.New("DATA_BASE_URL is required"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.Tracing.SampleRate))
	}
	if c.Providers.RetryTransportAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_TRANSPORT_ATTEMPTS must be >= 1, got %d", c.Providers.RetryTransportAttempts))
	}
	for name, v := range map[string]string{
		"SESSION_TTL":           c.Session.TTL,
		"SHUTDOWN_TIMEOUT":      c.Service.ShutdownTimeout,
		"READINESS_DRAIN_DELAY": c.Service.ReadinessDrainDelay,
		"PROVIDER_TIMEOUT":      c.Providers.Timeout,
		"BREAKER_OPEN_FOR":      c.Providers.BreakerOpenFor,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if d, err := time.ParseDuration(c.Session.TTL); err == nil && d <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// GetShutdownTimeoutDuration returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Service.ShutdownTimeout, 10*time.Second)
}

// GetReadinessDrainDelayDuration returns how long /ready reports 503 before
// the HTTP server stops accepting connections.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDuration(c.Service.ReadinessDrainDelay, 5*time.Second)
}

// GetSessionTTLDuration returns the session validity window.
func (c *Config) GetSessionTTLDuration() time.Duration {
	return parseDuration(c.Session.TTL, 24*time.Hour)
}

// GetProviderTimeoutDuration returns the per-request timeout for provider calls.
func (c *Config) GetProviderTimeoutDuration() time.Duration {
	return parseDuration(c.Providers.Timeout, 10*time.Second)
}

// GetBreakerOpenForDuration returns how long an open breaker rejects calls.
func (c *Config) GetBreakerOpenForDuration() time.Duration {
	return parseDuration(c.Providers.BreakerOpenFor, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
