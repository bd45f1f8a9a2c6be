// Package metrics holds the process-wide Prometheus registry and the HTTP
// server that exposes it.
//
// Metrics are opt-in: until InitRegistry is called IsEnabled reports false
// and the constructors in pkg/metrics/prometheus return nil, which every
// consumer treats as "do not collect".
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every metric name exported by agentd.
const Namespace = "agentd"

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the registry with the Go runtime and process
// collectors. Calling it again replaces the registry.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registryMu.Lock()
	registry = reg
	registryMu.Unlock()
	return reg
}

// GetRegistry returns the registry, or nil if InitRegistry was not called.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Reset drops the registry, disabling metrics. Used by tests.
func Reset() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}
