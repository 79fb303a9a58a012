package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesPublishedTotal counts messages by broker outcome
	messagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_published_total",
			Help: "Total number of messages published to the work queue",
		},
		[]string{"result"}, // confirmed|nacked|failed
	)

	batchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_batch_publish_duration_seconds",
			Help:    "Time to publish a batch and receive all confirms",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// deliveriesTotal counts consumed deliveries by acknowledgement
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_deliveries_total",
			Help: "Total number of deliveries consumed from the work queue",
		},
		[]string{"outcome"}, // ack|reject|requeue
	)

	inflightDeliveries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_inflight_deliveries",
			Help: "Number of deliveries currently being handled",
		},
	)
)
