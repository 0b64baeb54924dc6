// internal/common/metrics/metrics.go
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Governance
var (
	ApplicationsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_applications_submitted_total",
		Help: "Membership applications submitted",
	})

	ApplicationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_application_transitions_total",
			Help: "Membership application status transitions by target status",
		},
		[]string{"status"},
	)

	VotesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_votes_cast_total",
			Help: "Votes accepted by the tally engine",
		},
		[]string{"choice"},
	)

	VotesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_votes_rejected_total",
			Help: "Votes rejected by the tally engine",
		},
		[]string{"error_code"},
	)
)

// Allocation
var (
	AllocationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_decisions_total",
			Help: "Cap check outcomes",
		},
		[]string{"outcome"},
	)

	AllocationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_transitions_total",
			Help: "Allocation status transitions",
		},
		[]string{"status"},
	)
)

// Exchange
var (
	RateLocksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_locks_created_total",
			Help: "Exchange rate locks created by price source",
		},
		[]string{"source"},
	)

	RateLocksConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_locks_consumed_total",
			Help: "Rate lock consume attempts by outcome",
		},
		[]string{"outcome"},
	)

	OracleFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_fallbacks_total",
			Help: "Times the live oracle price was replaced by a fallback",
		},
		[]string{"reason"},
	)
)

// Collaborators
var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	AuditMirrorWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_mirror_writes_total",
			Help: "Audit entries mirrored to the search index by outcome",
		},
		[]string{"outcome"},
	)
)

// HTTP API
var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "HTTP API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_rate_limited_total",
			Help: "HTTP API requests rejected by the per-caller rate limiter",
		},
	)
)
