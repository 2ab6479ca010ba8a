package observability

import (
	"strings"

	"github.com/smallbiznis/lunara/internal/config"
)

// Config is the observability view of the process configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "lunara"
	}
	level := obs.LogLevel
	if level == "" {
		level = "info"
	}
	format := obs.LogFormat
	if format != "console" {
		format = "json"
	}
	protocol := obs.OTLPProtocol
	if protocol != "http" && protocol != "http/protobuf" {
		protocol = "grpc"
	}
	ratio := obs.SamplingRatio
	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          cfg.Environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          obs.OTelEnabled && obs.OTLPEndpoint != "",
		OtelExporterEndpoint: obs.OTLPEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug reports whether verbose request logging is on: debug level, or any
// environment other than production.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || c.Environment != config.EnvProduction
}
