package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fnrunner_invocations_total",
			Help: "Total number of function invocations past lookup",
		},
		[]string{"language", "status"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fnrunner_invocation_duration_ms",
			Help:    "Invocation duration in milliseconds, provisioning through output collection",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fnrunner_queue_depth",
			Help: "Current number of invocations waiting for a worker",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fnrunner_active_workers",
			Help: "Number of workers currently running an invocation",
		},
	)

	SandboxStartTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fnrunner_sandbox_start_ms",
			Help:    "Time to create and start a sandbox",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fnrunner_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	WorkspaceCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fnrunner_workspace_cleanup_failures_total",
			Help: "Workspaces that could not be removed by either cleanup strategy",
		},
	)

	RecordPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fnrunner_record_persist_failures_total",
			Help: "Execution records that could not be written to the store",
		},
	)
)
