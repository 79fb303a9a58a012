package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/observability/tracing"
	"daily-briefing/internal/repository"
)

// ScanStats summarizes one scan.
type ScanStats struct {
	Scanned     int
	SkippedSent int
	NotDue      int
	Errors      int
	Eligible    int
}

// Scanner selects the users due a briefing in a scan window.
type Scanner struct {
	prefs  repository.PreferenceRepository
	logger *slog.Logger
}

// NewScanner creates a Scanner reading from prefs. A nil logger falls back to slog.Default().
func NewScanner(prefs repository.PreferenceRepository, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{prefs: prefs, logger: logger}
}

// Scan loads every enabled preference once and returns the deliveries due in
// window. "Today" for each user is the local date the send time matched on,
// which differs from the date at window.Start when the window crosses the
// user's midnight.
//
// Only a failure of the preference source aborts the scan. A preference with
// a bad timezone or local time is logged and left out.
func (s *Scanner) Scan(ctx context.Context, window Window) ([]entity.EligibleDelivery, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "schedule.Scan")
	defer span.End()

	if err := window.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	defer func() { scanDuration.Observe(time.Since(start).Seconds()) }()

	prefs, err := s.prefs.ListEnabled(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list preferences")
		return nil, fmt.Errorf("list enabled preferences: %w", err)
	}

	var stats ScanStats
	deliveries := make([]entity.EligibleDelivery, 0)

	for _, p := range prefs {
		if !p.Enabled {
			continue
		}
		stats.Scanned++

		d, outcome, err := evaluate(p, window)
		scanUsersTotal.WithLabelValues(outcome).Inc()
		switch outcome {
		case outcomeError:
			stats.Errors++
			reason := "invalid_local_time"
			if errors.Is(err, ErrInvalidTimezone) {
				reason = string(entity.ErrorInvalidTimezone)
			}
			scanUserErrorsTotal.WithLabelValues(reason).Inc()
			s.logger.Warn("Skipping preference",
				slog.String("user_id", p.UserID),
				slog.String("timezone", p.Timezone),
				slog.String("local_time", p.LocalTime),
				slog.String("reason", reason),
				slog.Any("error", err))
		case outcomeAlreadySent:
			stats.SkippedSent++
		case outcomeNotDue:
			stats.NotDue++
		case outcomeEligible:
			stats.Eligible++
			deliveries = append(deliveries, d)
		}
	}

	span.SetAttributes(
		attribute.Int("scan.scanned", stats.Scanned),
		attribute.Int("scan.eligible", stats.Eligible),
		attribute.Int("scan.errors", stats.Errors),
	)
	s.logger.Info("Preference scan completed",
		slog.Time("window_start", window.Start),
		slog.Time("window_end", window.End),
		slog.Int("scanned", stats.Scanned),
		slog.Int("skipped_sent", stats.SkippedSent),
		slog.Int("not_due", stats.NotDue),
		slog.Int("errors", stats.Errors),
		slog.Int("eligible", stats.Eligible))

	return deliveries, nil
}

// evaluate applies the dedup gate and the due check to one preference. A
// window can cross the user's local midnight, so the send time is tried on
// the local date at both ends of the window and the date it matched on is the
// one the delivery carries.
func evaluate(p entity.NotificationPreference, window Window) (entity.EligibleDelivery, string, error) {
	loc, err := LoadTimezone(p.Timezone)
	if err != nil {
		return entity.EligibleDelivery{}, outcomeError, err
	}
	t, err := entity.ParseTimeOfDay(p.LocalTime)
	if err != nil {
		return entity.EligibleDelivery{}, outcomeError, err
	}

	date, due, ok := dueInWindow(t, loc, window)
	if !ok {
		if alreadySent(p.LastSentDate, TodayIn(loc, window.Start)) {
			return entity.EligibleDelivery{}, outcomeAlreadySent, nil
		}
		return entity.EligibleDelivery{}, outcomeNotDue, nil
	}
	if alreadySent(p.LastSentDate, date) {
		return entity.EligibleDelivery{}, outcomeAlreadySent, nil
	}

	return entity.EligibleDelivery{
		UserID:       p.UserID,
		Timezone:     p.Timezone,
		Date:         date,
		Channel:      p.PreferredChannel(),
		ScheduledFor: due,
	}, outcomeEligible, nil
}

// dueInWindow returns the local date whose send time falls in window, trying
// the date at window.Start first and then the date at the window's last
// instant.
func dueInWindow(t entity.TimeOfDay, loc *time.Location, window Window) (string, time.Time, bool) {
	last := window.End.Add(-time.Nanosecond)
	for _, ref := range []time.Time{window.Start, last} {
		due := DueInstant(t, loc, ref)
		if window.Contains(due) {
			return TodayIn(loc, ref), due, true
		}
	}
	return "", time.Time{}, false
}
