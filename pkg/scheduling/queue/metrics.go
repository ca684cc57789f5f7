package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coflow-dev/coflow/pkg/metrics"
)

// NewWithMetrics creates a queue with Prometheus metrics enabled under
// the given name.
func NewWithMetrics(name string) *Queue {
	// Use a separate registry per metrics-enabled queue to avoid
	// duplicate registration across instances.
	registry := prometheus.NewRegistry()
	config := metrics.Config{
		Enabled:  true,
		Registry: registry,
	}

	return NewWithConfigAndMetrics(Config{}, name, config)
}

// NewWithConfigAndMetrics creates a queue with custom configuration and
// metrics.
func NewWithConfigAndMetrics(cfg Config, name string, metricsConfig metrics.Config) *Queue {
	cfg.Metrics = metricsConfig.Resolve()
	cfg.Name = name
	return NewWithConfig(cfg)
}
