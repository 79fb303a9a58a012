package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for briefing delivery monitoring
var (
	// notificationDispatchedTotal tracks dispatch attempts per channel
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_dispatch_total",
			Help: "Briefing dispatch attempts per channel",
		},
		[]string{"channel"},
	)

	// notificationSentTotal tracks dispatch results per channel
	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_results_total",
			Help: "Briefing dispatch results per channel (delivered or an error kind)",
		},
		[]string{"channel", "result"}, // result: delivered or an error kind
	)

	// notificationDuration tracks dispatch duration
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Time from dispatch to result, in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30}, // 100ms to 30s
		},
		[]string{"channel"},
	)

	// circuitBreakerOpenTotal tracks circuit breaker open events
	circuitBreakerOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_circuit_breaker_open_total",
			Help: "Times a channel circuit breaker opened",
		},
		[]string{"channel"},
	)

	// notificationDroppedTotal tracks sends that never reached a transport
	notificationDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_dropped_total",
			Help: "Dispatches that never reached a transport",
		},
		[]string{"channel", "reason"}, // reason: circuit_open|disabled|timeout|panic
	)

	// activeSends tracks adapter calls in flight, including ones past their deadline
	activeSends = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_active_sends",
			Help: "Number of channel adapter calls in flight",
		},
	)

	// channelsEnabled tracks number of enabled channels
	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_channels_enabled",
			Help: "Number of channel adapters with a configured transport",
		},
	)
)

// RecordDispatch records a dispatch attempt for channel.
func RecordDispatch(channel string) {
	notificationDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordResult records the outcome of a dispatch and its duration.
// result is "delivered" or the error kind of a failed delivery.
func RecordResult(channel, result string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, result).Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped records a send that was not handed to the transport.
func RecordDropped(channel string, reason string) {
	notificationDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordCircuitBreakerOpen records a circuit breaker open event.
func RecordCircuitBreakerOpen(channel string) {
	circuitBreakerOpenTotal.WithLabelValues(channel).Inc()
}

// SetChannelsEnabled sets the number of enabled notification channels.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}
