package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	productionBackendURL  = "https://umtp-backend-1.onrender.com"
	developmentBackendURL = "http://localhost:8000"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string
	AppEnv     string

	// BackendURL is the quiz backend serving questions, checks, hints and the log sink.
	BackendURL string
	// RedisURL selects Redis-backed stores. Empty means in-memory stores (dev default).
	RedisURL string

	SessionTTL       time.Duration
	DeviceTTL        time.Duration
	QuestionCacheTTL time.Duration
	WorkflowIdleTTL  time.Duration

	LogTimeout   time.Duration
	LogQueueSize int
	LogWorkers   int

	// HintPrecheck runs the correctness check before generating hints.
	HintPrecheck      bool
	HintRatePerMinute int

	SecureCookies bool
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string

	OtelEnabled     bool
	OtelServiceName string
	// OtelEndpoint is the OTLP/HTTP collector; empty exports spans to stdout.
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	appEnv := getEnv("APP_ENV", "development")

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		AppEnv:            appEnv,
		BackendURL:        strings.TrimRight(getEnv("BACKEND_URL", defaultBackendURL(appEnv)), "/"),
		RedisURL:          getEnv("REDIS_URL", ""),
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_HOURS", 12)) * time.Hour,
		DeviceTTL:         365 * 24 * time.Hour,
		QuestionCacheTTL:  time.Duration(getEnvInt("QUESTION_CACHE_TTL_SECONDS", 300)) * time.Second,
		WorkflowIdleTTL:   time.Duration(getEnvInt("WORKFLOW_IDLE_MINUTES", 90)) * time.Minute,
		LogTimeout:        time.Duration(getEnvInt("LOG_TIMEOUT_MS", 8000)) * time.Millisecond,
		LogQueueSize:      getEnvInt("LOG_QUEUE_SIZE", 256),
		LogWorkers:        getEnvInt("LOG_WORKERS", 4),
		HintPrecheck:      getEnvBool("HINT_PRECHECK", true),
		HintRatePerMinute: getEnvInt("HINT_RATE_PER_MINUTE", 6),
		SecureCookies:     getEnvBool("SECURE_COOKIES", appEnv == "production"),
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		OtelEnabled:       getEnvBool("OTEL_ENABLED", false),
		OtelServiceName:   getEnv("OTEL_SERVICE_NAME", "umtp-assist-gateway"),
		OtelEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelInsecure:      getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		OtelSampleRatio:   getEnvRatio("OTEL_SAMPLER_RATIO", 0.1),
	}
}

// IsProduction reports whether the production backend and cookie policy apply.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func defaultBackendURL(appEnv string) string {
	if appEnv == "production" {
		return productionBackendURL
	}
	return developmentBackendURL
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvRatio reads a float clamped to [0, 1].
func getEnvRatio(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
