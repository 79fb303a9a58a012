package briefing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/observability/logging"
	"daily-briefing/internal/observability/tracing"
	"daily-briefing/internal/repository"
	"daily-briefing/internal/usecase/schedule"
)

// Scanner selects the deliveries due in a window.
type Scanner interface {
	Scan(ctx context.Context, window schedule.Window) ([]entity.EligibleDelivery, error)
}

// Enqueuer hands deliveries to the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, deliveries []entity.EligibleDelivery) (schedule.EnqueueReport, error)
}

// JobMetrics receives per-tick measurements.
type JobMetrics interface {
	RecordJobRun(status string)
	RecordJobDuration(seconds float64)
	RecordDeliveries(result string, count int)
	RecordLastSuccess()
}

// JobStats summarizes one tick.
type JobStats struct {
	Window     schedule.Window
	Due        int
	Enqueued   int
	Failed     int
	Marked     int
	MarkErrors int
	Duration   time.Duration
}

// Job is one scheduler tick: aligned window, scan, enqueue, then record the
// last sent date for every delivery the queue accepted.
type Job struct {
	scanner  Scanner
	enqueuer Enqueuer
	prefs    repository.PreferenceRepository
	interval time.Duration
	timeout  time.Duration
	maxCatch time.Duration
	metrics  JobMetrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	covered time.Time // end of the last window scanned successfully
}

// JobConfig configures a Job.
type JobConfig struct {
	// Interval is the window width and should match the tick period.
	Interval time.Duration
	// Timeout bounds a whole tick. Zero means no extra deadline.
	Timeout time.Duration
	// MaxCatchUp bounds how far back a tick reaches to cover windows missed
	// by skipped or failed ticks. Zero means one hour.
	MaxCatchUp time.Duration
}

// NewJob creates the scheduler tick. A zero Interval means five minutes and a
// nil logger falls back to slog.Default().
func NewJob(scanner Scanner, enqueuer Enqueuer, prefs repository.PreferenceRepository, cfg JobConfig, metrics JobMetrics, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = time.Hour
	}
	return &Job{
		scanner:  scanner,
		enqueuer: enqueuer,
		prefs:    prefs,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		maxCatch: cfg.MaxCatchUp,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run evaluates the window that ended at the latest interval boundary. When
// earlier ticks were skipped or failed, the window is widened back to the end
// of the last successful scan, at most MaxCatchUp. Coverage is kept in memory
// only; a restart starts again from the latest aligned window.
func (j *Job) Run(ctx context.Context) (JobStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	window := j.nextWindow()
	stats, err := j.RunWindow(ctx, window)
	if err == nil {
		j.covered = window.End
	}
	return stats, err
}

func (j *Job) nextWindow() schedule.Window {
	window := schedule.AlignedWindow(j.now(), j.interval)
	if j.covered.IsZero() || !j.covered.Before(window.Start) {
		return window
	}
	start := j.covered
	if earliest := window.End.Add(-j.maxCatch); start.Before(earliest) {
		start = earliest
	}
	if start.Before(window.Start) {
		j.logger.Warn("Catching up missed briefing windows",
			slog.Time("from", start),
			slog.Time("aligned_start", window.Start))
		window.Start = start
	}
	return window
}

// RunWindow runs one tick over window.
//
// MarkSent is called only for deliveries the queue accepted, also when a
// later batch failed. A MarkSent failure is logged and counted; the tick
// still succeeds because the dedup key stops a second delivery that day.
func (j *Job) RunWindow(ctx context.Context, window schedule.Window) (stats JobStats, err error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	jobID := uuid.New().String()
	ctx = logging.ContextWithRequestID(ctx, jobID)
	logger := j.logger.With(slog.String("job_id", jobID))

	ctx, span := tracing.GetTracer().Start(ctx, "briefing.Job.Run",
		trace.WithAttributes(
			attribute.String("window.start", window.Start.UTC().Format(time.RFC3339)),
			attribute.String("window.end", window.End.UTC().Format(time.RFC3339)),
		))
	defer span.End()

	start := time.Now()
	stats.Window = window
	logger.Info("Briefing tick started",
		slog.Time("window_start", window.Start),
		slog.Time("window_end", window.End))

	defer func() {
		stats.Duration = time.Since(start)
		status := "success"
		switch {
		case err != nil:
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case stats.Failed > 0 || stats.MarkErrors > 0:
			status = "partial"
		}
		span.SetAttributes(
			attribute.Int("briefing.due", stats.Due),
			attribute.Int("briefing.enqueued", stats.Enqueued),
			attribute.Int("briefing.failed", stats.Failed),
		)
		if j.metrics != nil {
			j.metrics.RecordJobRun(status)
			j.metrics.RecordJobDuration(stats.Duration.Seconds())
			j.metrics.RecordDeliveries("due", stats.Due)
			j.metrics.RecordDeliveries("enqueued", stats.Enqueued)
			j.metrics.RecordDeliveries("failed", stats.Failed)
			j.metrics.RecordDeliveries("marked", stats.Marked)
			if err == nil {
				j.metrics.RecordLastSuccess()
			}
		}
		attrs := []any{
			slog.String("status", status),
			slog.Int("due", stats.Due),
			slog.Int("enqueued", stats.Enqueued),
			slog.Int("failed", stats.Failed),
			slog.Int("marked", stats.Marked),
			slog.Int("mark_errors", stats.MarkErrors),
			slog.Duration("duration", stats.Duration),
		}
		if err != nil {
			logger.Error("Briefing tick failed", append(attrs, slog.Any("error", err))...)
			return
		}
		logger.Info("Briefing tick completed", attrs...)
	}()

	due, err := j.scanner.Scan(ctx, window)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Due = len(due)
	if len(due) == 0 {
		return stats, nil
	}

	report, enqueueErr := j.enqueuer.Enqueue(ctx, due)
	stats.Enqueued = len(report.Accepted)
	stats.Failed = len(due) - len(report.Accepted)

	j.markSent(ctx, logger, report.Accepted, &stats)

	if enqueueErr != nil {
		return stats, fmt.Errorf("enqueue: %w", enqueueErr)
	}
	return stats, nil
}

func (j *Job) markSent(ctx context.Context, logger *slog.Logger, accepted []entity.EligibleDelivery, stats *JobStats) {
	// Accepted deliveries are recorded even past the tick deadline.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, d := range accepted {
		if err := j.prefs.MarkSent(markCtx, d.UserID, d.Date); err != nil {
			stats.MarkErrors++
			markSentErrorsTotal.Inc()
			level := slog.LevelWarn
			if !errors.Is(err, repository.ErrUserNotFound) {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "Failed to record last sent date",
				slog.String("user_id", d.UserID),
				slog.String("date", d.Date),
				slog.Any("error", err))
			continue
		}
		stats.Marked++
	}
}
