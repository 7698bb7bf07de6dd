// Package config loads the service configuration from environment variables.
//
// Unset or empty variables take their default. A variable that is set but
// cannot be parsed is an error rather than a silent fallback, and Load
// reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "challenge-api")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	DSN    string // DATABASE_URL (postgres)
}

// RepoConfig tunes the repository layer.
type RepoConfig struct {
	MaxRetries       int           // REPO_MAX_RETRIES: total attempts per unit of work
	RetryBaseDelay   time.Duration // REPO_RETRY_BASE_DELAY
	RetryMaxDelay    time.Duration // REPO_RETRY_MAX_DELAY
	ValidateIDFormat bool          // REPO_VALIDATE_UUID
}

// CacheConfig sizes the read-through cache.
type CacheConfig struct {
	Enabled  bool          // CACHE_ENABLED
	TTL      time.Duration // CACHE_TTL
	Capacity int           // CACHE_CAPACITY
	Shards   int           // CACHE_SHARDS
}

// EventsConfig selects the event bus. An empty RedisAddr keeps events in
// process.
type EventsConfig struct {
	RedisAddr string // REDIS_ADDR
	Channel   string // REDIS_CHANNEL
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence
	DB     DBConfig
	Repo   RepoConfig
	Cache  CacheConfig
	Events EventsConfig

	// Rate limiting
	RateRPS       float64 // tokens per second (>= 0)
	RateBurst     int     // bucket size (>= 1)
	RateWriteCost int     // tokens per write request (1..RateBurst)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for main packages that cannot start without config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads, normalizes and validates the configuration.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "app.db"),
			DSN:    e.str("DATABASE_URL", ""),
		},
		Repo: RepoConfig{
			MaxRetries:       e.integer("REPO_MAX_RETRIES", 3),
			RetryBaseDelay:   e.dur("REPO_RETRY_BASE_DELAY", 100*time.Millisecond),
			RetryMaxDelay:    e.dur("REPO_RETRY_MAX_DELAY", 2*time.Second),
			ValidateIDFormat: e.flag("REPO_VALIDATE_UUID", true),
		},
		Cache: CacheConfig{
			Enabled:  e.flag("CACHE_ENABLED", true),
			TTL:      e.dur("CACHE_TTL", 5*time.Minute),
			Capacity: e.integer("CACHE_CAPACITY", 10000),
			Shards:   e.integer("CACHE_SHARDS", 64),
		},
		Events: EventsConfig{
			RedisAddr: e.str("REDIS_ADDR", ""),
			Channel:   e.str("REDIS_CHANNEL", "challenge-events"),
		},

		RateRPS:       e.number("RATE_RPS", 5.0),
		RateBurst:     e.integer("RATE_BURST", 10),
		RateWriteCost: e.integer("RATE_WRITE_COST", 2),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "challenge-api"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.Validate())...)
}

// Validate checks cross-field constraints and returns all violations joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.DSN) != "", "DATABASE_URL is required for postgres")
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}
	check(c.Repo.MaxRetries >= 1, "REPO_MAX_RETRIES must be >= 1")
	check(c.Repo.RetryBaseDelay >= 0 && c.Repo.RetryMaxDelay >= c.Repo.RetryBaseDelay,
		"REPO_RETRY_MAX_DELAY must be >= REPO_RETRY_BASE_DELAY >= 0")
	if c.Cache.Enabled {
		check(c.Cache.TTL > 0 && c.Cache.Capacity > 0 && c.Cache.Shards > 0,
			"CACHE_TTL, CACHE_CAPACITY and CACHE_SHARDS must be > 0")
	}
	if c.Events.RedisAddr != "" {
		check(strings.TrimSpace(c.Events.Channel) != "", "REDIS_CHANNEL must not be empty when REDIS_ADDR is set")
	}

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	if c.RateBurst >= 1 {
		check(c.RateWriteCost >= 1 && c.RateWriteCost <= c.RateBurst, "RATE_WRITE_COST must be between 1 and RATE_BURST")
	}
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errors.Join(errs...)
}

// env reads typed variables and remembers the ones that failed to parse.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", k, v, kind))
}

func (e *env) str(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *env) number(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func (e *env) flag(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// empty means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
