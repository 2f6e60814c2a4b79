package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_executions_total",
			Help: "Total number of code executions by outcome",
		},
		[]string{"language", "status"}, // status: CompileTimeError, RuntimeError, Ok, error
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderunner_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language", "phase"}, // phase: "compile", "run", "total"
	)

	LaunchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_launch_failures_total",
			Help: "Requests aborted because a sandbox, toolchain or workspace file could not be set up",
		},
		[]string{"language"},
	)

	WorkspaceEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_workspace_entries",
			Help: "Source files currently materialized in the scratch directory",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_queue_depth",
			Help: "Current number of jobs in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coderunner_container_creation_ms",
			Help:    "Time to create and start a container (docker backend)",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)
)
