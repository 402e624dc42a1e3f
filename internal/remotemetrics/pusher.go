package remotemetrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/duesledger/internal/config"
	"go.uber.org/zap"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"
	ExporterOTLP        = "otlp"
)

var (
	ErrExporterRequired = errors.New("remote metrics exporter is required")
	ErrEndpointRequired = errors.New("remote metrics endpoint is required")
	ErrUnknownExporter  = errors.New("unknown remote metrics exporter")
)

// Pusher ships a gathered registry to a remote collector.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// Target is a validated remote metrics destination.
type Target struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

func ParseTarget(cfg config.RemoteMetricsConfig) (Target, error) {
	target := Target{
		Exporter:  strings.ToLower(strings.TrimSpace(cfg.Exporter)),
		Endpoint:  strings.TrimSpace(cfg.Endpoint),
		AuthToken: strings.TrimSpace(cfg.AuthToken),
	}
	switch {
	case target.Exporter == "":
		return Target{}, ErrExporterRequired
	case target.Endpoint == "":
		return Target{}, ErrEndpointRequired
	}

	switch target.Exporter {
	case ExporterRemoteWrite, ExporterPushgateway:
		if _, err := url.ParseRequestURI(target.Endpoint); err != nil {
			return Target{}, fmt.Errorf("invalid remote metrics endpoint: %w", err)
		}
	case ExporterOTLP:
		if _, _, err := parseOTLPEndpoint(target.Endpoint); err != nil {
			return Target{}, err
		}
	default:
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownExporter, target.Exporter)
	}
	return target, nil
}

// NewPusher returns nil when remote metrics are off or misconfigured; the
// ledger keeps serving either way.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Remote.Enabled {
		return nil
	}
	target, err := ParseTarget(cfg.Remote)
	if err != nil {
		logger.Warn("remote metrics disabled", zap.Error(err))
		return nil
	}

	external := map[string]string{"environment": strings.TrimSpace(cfg.Environment)}
	switch target.Exporter {
	case ExporterRemoteWrite:
		return NewRemoteWritePusher(target.Endpoint, target.AuthToken, external)
	case ExporterPushgateway:
		external["instance"] = strings.TrimSpace(cfg.InstanceID)
		return NewPushgatewayPusher(target.Endpoint, cfg.AppName, external)
	default:
		pusher, err := NewOTLPPusher(target.Endpoint, target.AuthToken, Resource{
			ServiceName:    cfg.AppName,
			ServiceVersion: cfg.AppVersion,
			Environment:    cfg.Environment,
		})
		if err != nil {
			logger.Warn("remote metrics disabled", zap.Error(err))
			return nil
		}
		return pusher
	}
}
