package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyConfigHolder),
)

// DefaultReportBodyMaxBytes fits the default photo allowance as base64 JSON.
const DefaultReportBodyMaxBytes int64 = 32 << 20

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	DefaultOrgID  int64
	SnowflakeNode int64

	// ReportBodyMaxBytes caps a progress report submission body.
	ReportBodyMaxBytes int64

	Telemetry TelemetryConfig

	DefaultCurrency string
	DefaultLocale   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit RateLimitConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// TelemetryConfig feeds logging, tracing and metrics. OTEL_* names follow the
// OpenTelemetry SDK conventions.
type TelemetryConfig struct {
	LogLevel         string
	LogFormat        string
	OtelEnabled      bool
	OTLPEndpoint     string
	OTLPProtocol     string
	OtelSamplingRate float64
}

// RateLimitConfig guards progress report submission. It needs Redis.
type RateLimitConfig struct {
	Enabled              bool
	ReportSubmitRate     float64
	ReportSubmitBurst    int
	ReportLockTTLSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "fieldops"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DefaultOrgID:      getenvInt64("DEFAULT_ORG", 1),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		DefaultCurrency:   strings.ToUpper(getenv("DEFAULT_CURRENCY", "IDR")),
		DefaultLocale:     getenv("DEFAULT_LOCALE", "id-ID"),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			ReportSubmitRate:     getenvFloat("RATE_LIMIT_REPORT_SUBMIT_RATE", 2),
			ReportSubmitBurst:    int(getenvInt64("RATE_LIMIT_REPORT_SUBMIT_BURST", 10)),
			ReportLockTTLSeconds: int(getenvInt64("RATE_LIMIT_REPORT_LOCK_TTL_SECONDS", 10)),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fieldops"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
	}

	cfg.ReportBodyMaxBytes = getenvInt64("HTTP_REPORT_BODY_MAX_BYTES", DefaultReportBodyMaxBytes)
	cfg.Telemetry = loadTelemetry(cfg.Environment)

	return cfg
}

func loadTelemetry(environment string) TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		LogLevel:         strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:        strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:      getenvBool("OTEL_ENABLED", strings.EqualFold(environment, "production")),
		OTLPEndpoint:     strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OTLPProtocol:     strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRate: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
