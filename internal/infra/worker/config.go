package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daily-briefing/internal/pkg/config"
)

// WorkerConfig holds the configuration for the briefing worker.
//
// ScanCron decides when a tick runs; ScanInterval decides how wide the
// window evaluated by each tick is. They should describe the same period:
// the windows are aligned to ScanInterval boundaries, so a cron that fires
// less often than the interval leaves gaps and one that fires more often
// evaluates the same window twice (the second pass is a no-op through the
// dedup key).
type WorkerConfig struct {
	// ScanCron is the cron expression that triggers a scheduler tick.
	// Default: "*/5 * * * *"
	ScanCron string

	// ScanInterval is the width of each evaluated window. 1m to 1h.
	// Default: 5 minutes
	ScanInterval time.Duration

	// ScanTimeout bounds one tick, including enqueueing and MarkSent.
	// Default: 2 minutes
	ScanTimeout time.Duration

	// ScanOnStart runs one tick immediately after startup.
	// Default: false
	ScanOnStart bool

	// QueueMaxBatch caps deliveries per queue submission. 1-10.
	// Default: 10
	QueueMaxBatch int

	// DispatchMaxConcurrent bounds in-flight deliveries in the consumer. 1-100.
	// Default: 10
	DispatchMaxConcurrent int

	// DispatchSendTimeout bounds a single channel adapter call.
	// Default: 30 seconds
	DispatchSendTimeout time.Duration

	// DispatchResolveTimeout bounds the identity lookup before a send.
	// Default: 5 seconds
	DispatchResolveTimeout time.Duration

	// HealthPort serves /health and /health/ready. 1024-65535.
	// Default: 9091
	HealthPort int

	// MetricsPort serves /metrics and /health/channels. 1024-65535.
	// Default: 9090
	MetricsPort int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		ScanCron:               "*/5 * * * *",
		ScanInterval:           5 * time.Minute,
		ScanTimeout:            2 * time.Minute,
		ScanOnStart:            false,
		QueueMaxBatch:          10,
		DispatchMaxConcurrent:  10,
		DispatchSendTimeout:    30 * time.Second,
		DispatchResolveTimeout: 5 * time.Second,
		HealthPort:             9091,
		MetricsPort:            9090,
	}
}

func validateScanInterval(d time.Duration) error {
	if err := config.ValidateDuration(d, time.Minute, time.Hour); err != nil {
		return err
	}
	if d%time.Minute != 0 {
		return fmt.Errorf("duration %v is not a whole number of minutes", d)
	}
	return nil
}

func validatePort(v int) error {
	return config.ValidateIntRange(v, 1024, 65535)
}

// Validate checks every field and returns all failures joined.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.ScanCron); err != nil {
		errs = append(errs, fmt.Errorf("scan cron: %w", err))
	}
	if err := validateScanInterval(c.ScanInterval); err != nil {
		errs = append(errs, fmt.Errorf("scan interval: %w", err))
	}
	if err := config.ValidateDuration(c.ScanTimeout, time.Second, 30*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("scan timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.QueueMaxBatch, 1, 10); err != nil {
		errs = append(errs, fmt.Errorf("queue max batch: %w", err))
	}
	if err := config.ValidateIntRange(c.DispatchMaxConcurrent, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("dispatch max concurrent: %w", err))
	}
	if err := config.ValidateDuration(c.DispatchSendTimeout, time.Second, 5*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("dispatch send timeout: %w", err))
	}
	if err := config.ValidateDuration(c.DispatchResolveTimeout, 100*time.Millisecond, time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("dispatch resolve timeout: %w", err))
	}
	if err := validatePort(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := validatePort(c.MetricsPort); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health port and metrics port must differ, both are %d", c.HealthPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// loader applies one fail-open result to the config, logging and counting
// each fallback.
type loader struct {
	logger   *slog.Logger
	metrics  *WorkerMetrics
	fellBack bool
}

func apply[T any](l *loader, field string, result config.Result[T], dst *T) {
	*dst = result.Value
	if !result.FallbackApplied {
		return
	}
	l.fellBack = true
	l.metrics.RecordValidationError(field)
	l.metrics.RecordFallback(field)
	for _, warning := range result.Warnings {
		l.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
}

// LoadConfigFromEnv loads the worker configuration from the environment.
// It never fails: an invalid value falls back to its default with a warning
// log and a fallback metric.
//
// Environment variables:
//   - SCAN_CRON (default "*/5 * * * *")
//   - SCAN_INTERVAL (default 5m)
//   - SCAN_TIMEOUT (default 2m)
//   - SCAN_ON_START (default false)
//   - QUEUE_MAX_BATCH (default 10)
//   - DISPATCH_MAX_CONCURRENT (default 10)
//   - DISPATCH_SEND_TIMEOUT (default 30s)
//   - WORKER_HEALTH_PORT (default 9091)
//   - METRICS_PORT (default 9090)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	l := &loader{logger: logger, metrics: metrics}

	apply(l, "scan_cron", config.LoadEnvWithFallback("SCAN_CRON", cfg.ScanCron, config.ValidateCronSchedule), &cfg.ScanCron)
	apply(l, "scan_interval", config.LoadEnvDuration("SCAN_INTERVAL", cfg.ScanInterval, validateScanInterval), &cfg.ScanInterval)
	apply(l, "scan_timeout", config.LoadEnvDuration("SCAN_TIMEOUT", cfg.ScanTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 30*time.Minute)
	}), &cfg.ScanTimeout)
	apply(l, "scan_on_start", config.LoadEnvBool("SCAN_ON_START", cfg.ScanOnStart), &cfg.ScanOnStart)
	apply(l, "queue_max_batch", config.LoadEnvInt("QUEUE_MAX_BATCH", cfg.QueueMaxBatch, func(v int) error {
		return config.ValidateIntRange(v, 1, 10)
	}), &cfg.QueueMaxBatch)
	apply(l, "dispatch_max_concurrent", config.LoadEnvInt("DISPATCH_MAX_CONCURRENT", cfg.DispatchMaxConcurrent, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	}), &cfg.DispatchMaxConcurrent)
	apply(l, "dispatch_send_timeout", config.LoadEnvDuration("DISPATCH_SEND_TIMEOUT", cfg.DispatchSendTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 5*time.Minute)
	}), &cfg.DispatchSendTimeout)
	apply(l, "dispatch_resolve_timeout", config.LoadEnvDuration("DISPATCH_RESOLVE_TIMEOUT", cfg.DispatchResolveTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 100*time.Millisecond, time.Minute)
	}), &cfg.DispatchResolveTimeout)
	apply(l, "health_port", config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, validatePort), &cfg.HealthPort)
	apply(l, "metrics_port", config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, validatePort), &cfg.MetricsPort)

	if cfg.HealthPort == cfg.MetricsPort {
		def := DefaultConfig()
		logger.Warn("Configuration fallback applied",
			slog.String("field", "ports"),
			slog.String("warning", fmt.Sprintf("WORKER_HEALTH_PORT and METRICS_PORT are both %d, falling back to defaults", cfg.HealthPort)))
		l.fellBack = true
		metrics.RecordValidationError("ports")
		metrics.RecordFallback("ports")
		cfg.HealthPort, cfg.MetricsPort = def.HealthPort, def.MetricsPort
	}

	metrics.SetFallbackActive(l.fellBack)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
