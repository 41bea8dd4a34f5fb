package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PipelinePlans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_plans_total",
			Help: "Plans built, by whether they include a discrepancy check",
		},
		[]string{"discrepancy_check"},
	)

	QueryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_query_errors_total",
			Help: "Query stages that finished with an error captured in the result",
		},
	)

	DiscrepanciesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_discrepancies_total",
			Help: "Discrepancy records emitted, by type and severity",
		},
		[]string{"type", "severity"},
	)

	RuleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_rule_failures_total",
			Help: "Business rules whose execution failed",
		},
		[]string{"rule"},
	)

	CatalogTables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "schema_catalog_tables",
			Help: "Number of tables in the current schema catalog snapshot",
		},
	)
)
