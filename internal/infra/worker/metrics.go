package worker

import (
	"daily-briefing/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the worker process. It embeds
// the standard ConfigMetrics (worker_config_*) and adds per-tick metrics:
//   - worker_scan_job_runs_total{status}: success, partial or failure
//   - worker_scan_job_duration_seconds
//   - worker_scan_job_deliveries_total{result}: due, enqueued, failed, marked
//   - worker_scan_job_last_success_timestamp
//
// Everything is registered through promauto, so NewWorkerMetrics may be
// called once per process.
type WorkerMetrics struct {
	*config.ConfigMetrics

	ScanJobRunsTotal            *prometheus.CounterVec
	ScanJobDurationSeconds      prometheus.Histogram
	ScanJobDeliveriesTotal      *prometheus.CounterVec
	ScanJobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics with the default registry.
// Call it once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		ScanJobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_scan_job_runs_total",
			Help: "Total number of scheduler ticks by status (success/partial/failure)",
		}, []string{"status"}),

		ScanJobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_scan_job_duration_seconds",
			Help:    "Duration of a scheduler tick in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),

		ScanJobDeliveriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_scan_job_deliveries_total",
			Help: "Deliveries handled by scheduler ticks by result (due/enqueued/failed/marked)",
		}, []string{"result"}),

		ScanJobLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_scan_job_last_success_timestamp",
			Help: "Unix timestamp of the last scheduler tick that completed without error",
		}),
	}
}

// RecordJobRun increments the tick counter for status.
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.ScanJobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes a tick duration in seconds.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.ScanJobDurationSeconds.Observe(seconds)
}

// RecordDeliveries adds count to the deliveries counter for result.
func (m *WorkerMetrics) RecordDeliveries(result string, count int) {
	if count <= 0 {
		return
	}
	m.ScanJobDeliveriesTotal.WithLabelValues(result).Add(float64(count))
}

func (m *WorkerMetrics) RecordLastSuccess() {
	m.ScanJobLastSuccessTimestamp.SetToCurrentTime()
}
