package config

import (
	"github.com/marmos91/httpfileserv/pkg/metrics"
	promMetrics "github.com/marmos91/httpfileserv/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the file server (never nil, no-op if disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// When metrics are disabled it returns a nil server and a no-op collector.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		}),
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
