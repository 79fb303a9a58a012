package briefing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefing_consumer_messages_total",
			Help: "Queued briefings handled by the consumer by outcome",
		},
		[]string{"outcome"}, // delivered, duplicate, failed, interrupted, malformed, claim_error
	)

	deliveryLagSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "briefing_delivery_lag_seconds",
			Help:    "Time from the scheduled instant to a successful delivery",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	markSentErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "briefing_mark_sent_errors_total",
			Help: "Accepted deliveries whose last sent date could not be stored",
		},
	)
)
