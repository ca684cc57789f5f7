/*
Package metrics provides Prometheus instrumentation for the coflow engine.

Components accept a *Registry through their Config; a nil registry disables
collection entirely. The default registry registers against
prometheus.DefaultRegisterer:

	q := queue.NewWithConfig(queue.Config{
		Metrics: metrics.DefaultRegistry,
		Name:    "ingest",
	})

Custom registries isolate metrics per component or per test:

	reg := prometheus.NewRegistry()
	registry := metrics.NewRegistry(reg)

Metric families cover the cooperative scheduler (tasks enqueued, completed,
failed, active-set gauge), the job queue (batches by strategy, jobs by
outcome, cancellations, timeouts), and the process executor (starts,
failures, timeouts, durations by back-end).
*/
package metrics
