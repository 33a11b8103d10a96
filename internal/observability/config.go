package observability

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/smallbiznis/recurring/internal/config"
)

// Config holds logging and OTel settings. Blank identity fields fall back
// to the application config.
type Config struct {
	ServiceName string `env:"OTEL_SERVICE_NAME"`
	Environment string `env:"DEPLOYMENT_ENV"`
	Version     string `env:"SERVICE_VERSION"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OtelEnabled          bool    `env:"OTEL_ENABLED" envDefault:"true"`
	OtelExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterProtocol string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	OtelTracesProtocol   string  `env:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"`
	OtelSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
}

func LoadConfig(app config.Config) (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("observability config: %w", err)
	}
	return cfg.resolve(app), nil
}

func (c Config) resolve(app config.Config) Config {
	c.ServiceName = firstNonEmpty(c.ServiceName, app.AppName, "recurring")
	c.Environment = firstNonEmpty(c.Environment, app.Environment)
	c.Version = firstNonEmpty(c.Version, app.AppVersion)
	c.OtelExporterEndpoint = firstNonEmpty(c.OtelExporterEndpoint, app.OTLPEndpoint)

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	// The traces-specific protocol wins over the shared one.
	c.OtelExporterProtocol = strings.ToLower(firstNonEmpty(c.OtelTracesProtocol, c.OtelExporterProtocol))

	switch {
	case c.OtelSamplingRatio < 0:
		c.OtelSamplingRatio = 0
	case c.OtelSamplingRatio > 1:
		c.OtelSamplingRatio = 1
	}
	return c
}

// Debug is on for debug logging or any development environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
