// Package config loads the settings of both binaries from the environment.
//
// Config drives splitd, the reference directory service: listener and
// timeouts, logging, the SQLite file, rate limiting, CORS and HSTS, the
// idempotency window, the API docs, tracing and the accounts seeded at
// startup.
// ClientConfig drives splitctl: the directory endpoint and credential, the
// local cache store and the favorites and search tuning.
//
// Malformed values are errors, never silently replaced by defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

type CORSConfig struct {
	AllowedOrigins []string
}

type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures span export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string // host:port of the collector
	Insecure    bool   // plaintext gRPC
	ServiceName string
	SampleRatio float64 // share of new root traces kept, in [0,1]
}

// SeedUser is a directory account created at startup from SEED_USERS.
type SeedUser struct {
	Email string
	Name  string
	Token string
}

// Config is the directory service configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug, release or test

	LogLevel    string
	LogPretty   bool
	APIBasePath string // always starts with '/', never ends with one unless root

	SwaggerEnabled bool // serve the API docs under /swagger

	DBPath    string
	SeedUsers []SeedUser

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	// IdempotencyTTL bounds how long a create can be replayed by key.
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// ClientConfig is the splitctl configuration. Command line flags override
// it after loading.
type ClientConfig struct {
	APIURL      string // directory base URL including the API base path
	Token       string
	CacheDBPath string
	LogLevel    string
	LogPretty   bool
	Timeout     time.Duration // per remote request
	RemoteRPS   float64       // pacing of write calls, 0 disables it
	RemoteBurst int

	FavoritesLimit int
	SearchDebounce time.Duration
	SearchMinChars int

	OTEL OTELConfig
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}

// MustLoad is Load for main: it panics on a bad configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the directory service configuration.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              strings.TrimSpace(e.str("PORT", "8080")),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", time.Minute),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:    logLevel(e.str("LOG_LEVEL", "info")),
		LogPretty:   e.boolean("LOG_PRETTY", false),
		APIBasePath: basePath(e.str("API_BASE_PATH", "/api/v1")),

		SwaggerEnabled: e.boolean("SWAGGER_ENABLED", false),

		DBPath: strings.TrimSpace(e.str("DB_PATH", "directory.db")),

		RateRPS:   e.number("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: otelConfig(&e, "billsplit-directory"),
	}
	if err := e.err(); err != nil {
		return cfg, err
	}

	seeds, err := seedUsers(e.list("SEED_USERS"))
	if err != nil {
		return cfg, err
	}
	cfg.SeedUsers = seeds

	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, validate(
		rule{!logLevels[cfg.LogLevel], "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		rule{cfg.Port == "", "PORT must not be empty"},
		rule{cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0,
			"server timeouts must be positive"},
		rule{cfg.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		rule{cfg.DBPath == "", "DB_PATH must not be empty"},
		rule{cfg.RateRPS < 0, "RATE_RPS must be >= 0"},
		rule{cfg.RateBurst < 1, "RATE_BURST must be >= 1"},
		rule{cfg.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		rule{cfg.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		rule{cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	)
}

// LoadClient reads the splitctl configuration.
func LoadClient() (ClientConfig, error) {
	var e env
	cfg := ClientConfig{
		APIURL:      strings.TrimRight(strings.TrimSpace(e.str("BILLSPLIT_API_URL", "http://localhost:8080/api/v1")), "/"),
		Token:       strings.TrimSpace(e.str("BILLSPLIT_TOKEN", "")),
		CacheDBPath: strings.TrimSpace(e.str("CACHE_DB_PATH", "billsplit-cache.db")),
		LogLevel:    logLevel(e.str("LOG_LEVEL", "warn")),
		LogPretty:   e.boolean("LOG_PRETTY", true),
		Timeout:     e.duration("REMOTE_TIMEOUT", 10*time.Second),
		RemoteRPS:   e.number("REMOTE_RPS", 5),
		RemoteBurst: e.integer("REMOTE_BURST", 1),

		FavoritesLimit: e.integer("FAVORITES_LIMIT", 20),
		SearchDebounce: e.duration("SEARCH_DEBOUNCE", 300*time.Millisecond),
		SearchMinChars: e.integer("SEARCH_MIN_CHARS", 2),

		OTEL: otelConfig(&e, "splitctl"),
	}
	if err := e.err(); err != nil {
		return cfg, err
	}
	return cfg, validate(
		rule{!logLevels[cfg.LogLevel], "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		rule{cfg.APIURL == "", "BILLSPLIT_API_URL must not be empty"},
		rule{cfg.CacheDBPath == "", "CACHE_DB_PATH must not be empty"},
		rule{cfg.Timeout <= 0, "REMOTE_TIMEOUT must be > 0"},
		rule{cfg.RemoteRPS < 0, "REMOTE_RPS must be >= 0"},
		rule{cfg.RemoteBurst < 1, "REMOTE_BURST must be >= 1"},
		rule{cfg.FavoritesLimit < 1, "FAVORITES_LIMIT must be >= 1"},
		rule{cfg.SearchDebounce < 0, "SEARCH_DEBOUNCE must be >= 0"},
		rule{cfg.SearchMinChars < 1, "SEARCH_MIN_CHARS must be >= 1"},
		rule{cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	)
}

// otelConfig reads the standard OTEL_* variables; service names the binary
// unless OTEL_SERVICE_NAME overrides it.
func otelConfig(e *env, service string) OTELConfig {
	return OTELConfig{
		Enabled:     e.boolean("OTEL_ENABLED", false),
		Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName: e.str("OTEL_SERVICE_NAME", service),
		SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

// seedUsers parses "email:name:token" entries.
func seedUsers(entries []string) ([]SeedUser, error) {
	var out []SeedUser
	for _, item := range entries {
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("SEED_USERS entry %q must be email:name:token", item)
		}
		u := SeedUser{
			Email: strings.TrimSpace(parts[0]),
			Name:  strings.TrimSpace(parts[1]),
			Token: strings.TrimSpace(parts[2]),
		}
		if !strings.Contains(u.Email, "@") || u.Token == "" {
			return nil, fmt.Errorf("SEED_USERS entry %q needs an email and a token", item)
		}
		out = append(out, u)
	}
	return out, nil
}

func logLevel(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if l == "warning" {
		return "warn"
	}
	return l
}

// basePath returns p with a leading slash and no trailing one ("/" for empty).
func basePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
