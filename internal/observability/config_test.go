package observability

import (
	"testing"

	"github.com/smallbiznis/lunara/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizes(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  " 1.2.0 ",
		Environment: config.EnvProduction,
		Observability: config.ObservabilityConfig{
			LogFormat:     "logfmt",
			OTLPEndpoint:  "collector:4318",
			OTLPProtocol:  "http",
			OTelEnabled:   true,
			SamplingRatio: 4,
		},
	})

	assert.Equal(t, "lunara", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesExportWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:   config.EnvLocal,
		Observability: config.ObservabilityConfig{OTelEnabled: true, OTLPProtocol: "udp"},
	})

	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.True(t, cfg.Debug())
}
