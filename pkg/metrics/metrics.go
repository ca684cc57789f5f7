// Package metrics provides Prometheus instrumentation for coflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for coflow components.
type Registry struct {
	// Cooperative scheduling metrics
	TasksEnqueued  *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	ActiveTasks    *prometheus.GaugeVec
	TaskDuration   *prometheus.HistogramVec

	// Job queue metrics
	QueueBatches       *prometheus.CounterVec
	QueueJobs          *prometheus.CounterVec
	QueueCancellations *prometheus.CounterVec
	QueueTimeouts      *prometheus.CounterVec

	// Process executor metrics
	ProcessStarts   *prometheus.CounterVec
	ProcessFailures *prometheus.CounterVec
	ProcessTimeouts *prometheus.CounterVec
	ProcessDuration *prometheus.HistogramVec
}

// DefaultRegistry is the default metrics registry used by coflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TasksEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "sched",
				Name:      "tasks_enqueued_total",
				Help:      "Total number of tasks enqueued on a cooperative scheduler",
			},
			[]string{"scheduler"},
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "sched",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks that reached a terminal state",
			},
			[]string{"scheduler"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "sched",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks whose body reported an error",
			},
			[]string{"scheduler"},
		),

		ActiveTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "coflow",
				Subsystem: "sched",
				Name:      "tasks_active",
				Help:      "Number of tasks currently in the active set",
			},
			[]string{"scheduler"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coflow",
				Subsystem: "sched",
				Name:      "task_duration_seconds",
				Help:      "Wall time from first resume to termination",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheduler"},
		),

		QueueBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "queue",
				Name:      "batches_total",
				Help:      "Total number of queue runs, by chosen strategy",
			},
			[]string{"queue", "strategy"},
		),

		QueueJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "queue",
				Name:      "jobs_total",
				Help:      "Total number of jobs executed, by outcome",
			},
			[]string{"queue", "outcome"},
		),

		QueueCancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "queue",
				Name:      "cancellations_total",
				Help:      "Total number of Cancel calls observed mid-run",
			},
			[]string{"queue"},
		),

		QueueTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "queue",
				Name:      "timeouts_total",
				Help:      "Total number of queue runs abandoned by timeout",
			},
			[]string{"queue"},
		),

		ProcessStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "process",
				Name:      "starts_total",
				Help:      "Total number of process runs started, by back-end",
			},
			[]string{"backend"},
		),

		ProcessFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "process",
				Name:      "failures_total",
				Help:      "Total number of process runs that terminated with a failure",
			},
			[]string{"backend"},
		),

		ProcessTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coflow",
				Subsystem: "process",
				Name:      "timeouts_total",
				Help:      "Total number of process waits that expired and tore the handle down",
			},
			[]string{"backend"},
		),

		ProcessDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coflow",
				Subsystem: "process",
				Name:      "duration_seconds",
				Help:      "Wall time from Run to a terminal state",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
	}
}
