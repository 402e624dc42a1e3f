package observability

import (
	"strings"

	"github.com/smallbiznis/duesledger/internal/config"
)

// Config is the slice of the process configuration the telemetry providers
// need.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Development bool

	Telemetry config.TelemetryConfig
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "duesledger"
	}
	return Config{
		ServiceName: serviceName,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Development: cfg.IsDevelopment(),
		Telemetry:   cfg.Telemetry,
	}
}

// Debug turns on console-friendly logs and stack traces.
func (c Config) Debug() bool {
	return c.Telemetry.LogLevel == "debug" || c.Development
}
