// Package config loads the service settings. Values come from CLI flags bound
// on a viper instance, then the environment, then defaults; malformed numbers
// and durations fall back to their default before validation runs.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CORSConfig lists browser origins allowed to call the API. Empty allows any.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string // host:port
	Insecure    bool
	ServiceName string
	SampleRatio float64 // [0,1]
}

// EngineConfig selects the translation backend.
type EngineConfig struct {
	Name        string // stub, google or mymemory
	Timeout     time.Duration
	Credentials string // google service account file
	Email       string // mymemory quota contact
	StubLatency time.Duration
	StubModel   time.Duration // simulated model download
}

// SessionConfig holds translation session timing.
type SessionConfig struct {
	Debounce  time.Duration
	SaveDelay time.Duration
	Grace     time.Duration // detach to dispose
}

// Config is the full service configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBPath string
	// ValidateTranslations drops history candidates whose output language
	// cannot be identified.
	ValidateTranslations bool

	Engine  EngineConfig
	Session SessionConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Keys shared with the CLI flag bindings. Each maps to the upper-cased
// environment variable of the same name.
const (
	KeyDBPath   = "db_path"
	KeyLogLevel = "log_level"
	KeyEngine   = "engine"
)

// MustLoad is Load for callers that cannot continue without a config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment only.
func Load() (Config, error) { return LoadFrom(viper.New()) }

// LoadFrom reads through v, so flags bound to the Key* names take precedence
// over the environment.
func LoadFrom(v *viper.Viper) (Config, error) {
	s := settings{v}
	cfg := Config{
		Port:              s.str("port", "8080"),
		ReadTimeout:       s.duration("read_timeout", 15*time.Second),
		ReadHeaderTimeout: s.duration("read_header_timeout", 10*time.Second),
		WriteTimeout:      s.duration("write_timeout", 20*time.Second),
		IdleTimeout:       s.duration("idle_timeout", time.Minute),
		MaxHeaderBytes:    s.integer("max_header_bytes", 1<<20),
		GinMode:           strings.ToLower(s.str("gin_mode", "release")),

		LogLevel:       strings.ToLower(s.str(KeyLogLevel, "info")),
		LogPretty:      s.boolean("log_pretty", false),
		SwaggerEnabled: s.boolean("swagger_enabled", false),
		APIBasePath:    normalizeBasePath(s.str("api_base_path", "/api/v1")),

		DBPath:               s.str(KeyDBPath, "translingo.db"),
		ValidateTranslations: s.boolean("validate_translations", false),

		Engine: EngineConfig{
			Name:        strings.ToLower(strings.TrimSpace(s.str(KeyEngine, "stub"))),
			Timeout:     s.duration("engine_timeout", 30*time.Second),
			Credentials: s.str("google_application_credentials", ""),
			Email:       s.str("mymemory_email", ""),
			StubLatency: s.duration("stub_latency", 150*time.Millisecond),
			StubModel:   s.duration("stub_model_delay", 2*time.Second),
		},
		Session: SessionConfig{
			Debounce:  s.duration("debounce", 700*time.Millisecond),
			SaveDelay: s.duration("save_delay", 1300*time.Millisecond),
			Grace:     s.duration("session_grace", 5*time.Second),
		},

		RateRPS:   s.decimal("rate_rps", 5),
		RateBurst: s.integer("rate_burst", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(s.str("cors_allowed_origins", ""))},
		Security: SecurityConfig{
			EnableHSTS: s.boolean("enable_hsts", false),
			HSTSMaxAge: s.duration("hsts_max_age", 180*24*time.Hour),
		},

		IdempotencyTTL: s.duration("idempotency_ttl", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     s.boolean("otel_enabled", false),
			Endpoint:    s.str("otel_exporter_otlp_endpoint", "localhost:4317"),
			Insecure:    s.boolean("otel_exporter_otlp_insecure", true),
			ServiceName: s.str("otel_service_name", "translingo"),
			SampleRatio: s.decimal("otel_traces_sampler_arg", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if !oneOf(cfg.GinMode, "debug", "release", "test") {
		cfg.GinMode = "release"
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{!oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
			"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
			"timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{strings.TrimSpace(c.DBPath) == "", "DB_PATH must not be empty"},
		{!oneOf(c.Engine.Name, "stub", "google", "mymemory"), "ENGINE must be one of: stub, google, mymemory"},
		{c.Engine.Timeout <= 0, "ENGINE_TIMEOUT must be > 0"},
		{c.Engine.StubLatency < 0 || c.Engine.StubModel < 0, "STUB_LATENCY and STUB_MODEL_DELAY must be >= 0"},
		{c.Session.Debounce <= 0 || c.Session.SaveDelay <= 0, "DEBOUNCE and SAVE_DELAY must be positive durations"},
		{c.Session.Grace < 0, "SESSION_GRACE must be >= 0"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, ch := range checks {
		if ch.bad {
			return errors.New(ch.msg)
		}
	}
	return nil
}

// settings registers each key's default and environment binding on first
// read. Empty environment values count as unset.
type settings struct{ v *viper.Viper }

func (s settings) raw(key string, def any) string {
	s.v.SetDefault(key, def)
	_ = s.v.BindEnv(key)
	return s.v.GetString(key)
}

func (s settings) str(key, def string) string { return s.raw(key, def) }

func (s settings) integer(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s.raw(key, def))); err == nil {
		return n
	}
	return def
}

func (s settings) decimal(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s.raw(key, def)), 64); err == nil {
		return f
	}
	return def
}

func (s settings) duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s.raw(key, def.String()))); err == nil {
		return d
	}
	return def
}

func (s settings) boolean(key string, def bool) bool {
	if b, ok := parseBool(s.raw(key, fmt.Sprint(def))); ok {
		return b
	}
	return def
}

func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
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

// normalizeBasePath returns "/" or a path with a leading slash and no
// trailing one.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
