// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, the language-model
// provider, insight caching/retention, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls response hardening headers.
type SecurityConfig struct {
	EnableHSTS bool          // SECURITY_ENABLE_HSTS; only sent for HTTPS requests
	HSTSMaxAge time.Duration // SECURITY_HSTS_MAX_AGE
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-insights-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LLMConfig selects and tunes the language-model provider.
type LLMConfig struct {
	Provider        string        // anthropic|openai
	AnthropicAPIKey string        // ANTHROPIC_API_KEY
	OpenAIAPIKey    string        // OPENAI_API_KEY
	BaseURL         string        // optional provider base URL override
	Model           string        // provider model id; empty uses the provider default
	MaxTokens       int64         // completion budget
	Temperature     float64       // [0..2]
	Timeout         time.Duration // per-call timeout
	MaxRetries      int           // retries after the first attempt
	RetryBaseDelay  time.Duration // first backoff delay
	RetryMaxDelay   time.Duration // per-attempt backoff cap
	PromptCacheTTL  time.Duration // 0 disables the prompt-hash response cache
}

// InsightConfig controls caching, retention and scheduling of insights.
type InsightConfig struct {
	CacheTTL  time.Duration // in-process cache lifetime
	Retention int           // stored insights kept per user
	Schedule  string        // cron spec for monthly pre-generation; empty disables
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // defaults to cover a fully retried model call
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Rate limiting (generation endpoint)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Auth
	JWTSecret string // when set, bearer tokens are required

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	LLM      LLMConfig
	Insights InsightConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 0),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 0.5),
		RateBurst: getint("RATE_BURST", 3),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("SECURITY_ENABLE_HSTS", false),
			HSTSMaxAge: getdur("SECURITY_HSTS_MAX_AGE", 180*24*time.Hour),
		},

		JWTSecret: getenv("JWT_SECRET", ""),

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		LLM: LLMConfig{
			Provider:        strings.ToLower(getenv("LLM_PROVIDER", "anthropic")),
			AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    getenv("OPENAI_API_KEY", ""),
			BaseURL:         getenv("LLM_BASE_URL", ""),
			Model:           getenv("LLM_MODEL", ""),
			MaxTokens:       int64(getint("LLM_MAX_TOKENS", 2048)),
			Temperature:     getfloat("LLM_TEMPERATURE", 0.3),
			Timeout:         getdur("LLM_TIMEOUT", 30*time.Second),
			MaxRetries:      getint("LLM_MAX_RETRIES", 2),
			RetryBaseDelay:  getdur("LLM_RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:   getdur("LLM_RETRY_MAX_DELAY", 10*time.Second),
			PromptCacheTTL:  getdur("LLM_PROMPT_CACHE_TTL", time.Hour),
		},

		Insights: InsightConfig{
			CacheTTL:  getdur("INSIGHT_CACHE_TTL", 24*time.Hour),
			Retention: getint("INSIGHT_RETENTION", 10),
			Schedule:  strings.TrimSpace(getenv("INSIGHT_SCHEDULE", "0 3 1 * *")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-insights-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = max(minWriteTimeout, cfg.LLM.MaxGenerationTime()+writeTimeoutMargin)
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Insights.Schedule == "off" || cfg.Insights.Schedule == "-" {
		cfg.Insights.Schedule = ""
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	switch cfg.LLM.Provider {
	case "anthropic", "openai":
	default:
		return cfg, errors.New("LLM_PROVIDER must be one of: anthropic, openai")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return cfg, errors.New("LLM_MAX_TOKENS must be > 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return cfg, errors.New("LLM_TEMPERATURE must be in [0,2]")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}
	if cfg.LLM.MaxRetries < 0 {
		return cfg, errors.New("LLM_MAX_RETRIES must be >= 0")
	}
	if cfg.LLM.RetryBaseDelay < 0 || cfg.LLM.RetryMaxDelay < cfg.LLM.RetryBaseDelay {
		return cfg, errors.New("LLM_RETRY_MAX_DELAY must be >= LLM_RETRY_BASE_DELAY >= 0")
	}
	if cfg.LLM.PromptCacheTTL < 0 {
		return cfg, errors.New("LLM_PROMPT_CACHE_TTL must be >= 0")
	}
	if cfg.Insights.CacheTTL <= 0 {
		return cfg, errors.New("INSIGHT_CACHE_TTL must be > 0")
	}
	if cfg.Insights.Retention < 1 {
		return cfg, errors.New("INSIGHT_RETENTION must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Write timeout floor and the headroom added on top of the worst-case model
// time for store reads and writes around the call.
const (
	minWriteTimeout    = 90 * time.Second
	writeTimeoutMargin = 15 * time.Second
)

// MaxGenerationTime is the longest a fully retried model call can take: every
// attempt running to Timeout plus each capped backoff delay between attempts.
func (c LLMConfig) MaxGenerationTime() time.Duration {
	retries := max(c.MaxRetries, 0)
	total := time.Duration(retries+1) * c.Timeout
	delay := c.RetryBaseDelay
	for i := 0; i < retries; i++ {
		total += min(delay, c.RetryMaxDelay)
		delay *= 2
	}
	return total
}

// APIKey returns the credential for the selected provider.
func (c LLMConfig) APIKey() string {
	if c.Provider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
