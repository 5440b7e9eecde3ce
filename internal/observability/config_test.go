package observability

import (
	"testing"

	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "development"})

	assert.Equal(t, "fieldops", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigFromTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "fieldops-api",
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:         "warn",
			OtelEnabled:      true,
			OTLPEndpoint:     "collector:4318",
			OTLPProtocol:     "http",
			OtelSamplingRate: 0.5,
		},
	})

	assert.Equal(t, "fieldops-api", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadTelemetryFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig(config.Load())

	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug())
}
