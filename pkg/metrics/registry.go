// Package metrics provides Prometheus metrics collection for the file server.
//
// Metrics are optional. Until InitRegistry is called every constructor hands
// out a no-op implementation, so the server runs the same with or without
// collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	httpMetrics := prometheus.NewHTTPMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read many times after.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global Prometheus registry, pre-loaded with the
// Go runtime and process collectors. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
