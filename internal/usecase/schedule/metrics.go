package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// scanUsersTotal counts scanned preferences by outcome
	scanUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_scan_users_total",
			Help: "Total number of preferences evaluated by the scanner",
		},
		[]string{"outcome"}, // outcome: eligible|already_sent|not_due|error
	)

	// scanUserErrorsTotal counts per-user evaluation errors
	scanUserErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_scan_user_errors_total",
			Help: "Total number of preferences excluded because of an evaluation error",
		},
		[]string{"reason"}, // reason: invalid_timezone|invalid_local_time
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedule_scan_duration_seconds",
			Help:    "Preference scan duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// enqueueMessagesTotal counts messages handed to the queue transport
	enqueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_enqueue_messages_total",
			Help: "Total number of deliveries submitted to the work queue",
		},
		[]string{"status"}, // status: accepted|rejected
	)

	// enqueueBatchesTotal counts batch submissions by result
	enqueueBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_enqueue_batches_total",
			Help: "Total number of batch submissions to the work queue",
		},
		[]string{"status"}, // status: success|partial|failure
	)
)

const (
	outcomeEligible    = "eligible"
	outcomeAlreadySent = "already_sent"
	outcomeNotDue      = "not_due"
	outcomeError       = "error"
)
