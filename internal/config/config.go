package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/cuehub-pay/internal/payment"
)

// maxStoreTimeout bounds every Order Store call made on behalf of the gateway.
const maxStoreTimeout = 5 * time.Second

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	MigrateOnStart     bool

	LogFormat     string
	LogLevel      string
	MetricsNS     string
	TraceExporter string
	TraceEndpoint string
	TraceSampling float64

	VNPTmnCode    string
	VNPHashSecret string
	VNPPaymentURL string
	VNPReturnURL  string
	VNPLocale     string
	VNPExpiry     time.Duration

	StoreTimeout    time.Duration
	IPNLockTTL      time.Duration
	IdempotencyTTL  time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	BodyLimitBytes  int64

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),

		LogFormat:     valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:      valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNS:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "cuehub"),
		TraceExporter: valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "none"),
		TraceEndpoint: strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TraceSampling: parseFloat(k.String("OBS_TRACING_SAMPLE_RATIO"), 1),

		VNPTmnCode:    strings.TrimSpace(k.String("VNP_TMN_CODE")),
		VNPHashSecret: strings.TrimSpace(k.String("VNP_HASH_SECRET")),
		VNPPaymentURL: strings.TrimSpace(k.String("VNP_PAYMENT_URL")),
		VNPReturnURL:  strings.TrimSpace(k.String("VNP_RETURN_URL")),
		VNPLocale:     valueOrDefault(k.String("VNP_LOCALE"), "vn"),
		VNPExpiry:     parseDuration(k.String("VNP_EXPIRY"), "15m"),

		StoreTimeout:    parseDuration(k.String("PAYMENT_STORE_TIMEOUT"), "5s"),
		IPNLockTTL:      parseDuration(k.String("IPN_LOCK_TTL"), "10s"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitMax:    parseInt(k.String("PAYMENT_RATE_LIMIT_MAX"), 30),
		RateLimitWindow: parseDuration(k.String("PAYMENT_RATE_LIMIT_WINDOW"), "1m"),
		BodyLimitBytes:  int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 64<<10)),

		BreakerMinRequests:  parseInt(k.String("STORE_BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("STORE_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("STORE_BREAKER_OPEN_FOR"), "30s"),
	}

	if cfg.StoreTimeout <= 0 || cfg.StoreTimeout > maxStoreTimeout {
		cfg.StoreTimeout = maxStoreTimeout
	}
	if cfg.VNPLocale != "vn" && cfg.VNPLocale != "en" {
		return nil, fmt.Errorf("VNP_LOCALE must be vn or en, got %q", cfg.VNPLocale)
	}

	var missing []string
	for _, req := range []struct{ key, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"VNP_TMN_CODE", cfg.VNPTmnCode},
		{"VNP_HASH_SECRET", cfg.VNPHashSecret},
		{"VNP_PAYMENT_URL", cfg.VNPPaymentURL},
		{"VNP_RETURN_URL", cfg.VNPReturnURL},
	} {
		if req.value == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s is required", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// Gateway returns the immutable merchant settings consumed by the payment package.
func (c *Config) Gateway() payment.GatewayConfig {
	return payment.GatewayConfig{
		TmnCode:    c.VNPTmnCode,
		HashSecret: c.VNPHashSecret,
		PaymentURL: c.VNPPaymentURL,
		ReturnURL:  c.VNPReturnURL,
		Locale:     c.VNPLocale,
		Expiry:     c.VNPExpiry,
	}
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
