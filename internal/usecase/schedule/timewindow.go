// Package schedule decides which users are due a daily briefing in a given
// scheduler tick and hands them to the work queue.
//
// Every evaluation function takes the reference instant explicitly; nothing
// in this package reads the wall clock or the server's local timezone.
package schedule

import (
	"fmt"
	"time"

	"daily-briefing/internal/domain/entity"
)

// Window is a half-open UTC interval [Start, End) evaluated by one tick.
type Window struct {
	Start time.Time
	End   time.Time
}

// AlignedWindow returns the interval that ended at the most recent interval
// boundary before now. Successive ticks produce contiguous windows, so a due
// instant falls into exactly one of them.
func AlignedWindow(now time.Time, interval time.Duration) Window {
	end := now.UTC().Truncate(interval)
	return Window{Start: end.Add(-interval), End: end}
}

// Validate reports ErrInvalidWindow when End is not after Start.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow,
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// LoadTimezone resolves an IANA timezone name. Empty names and "Local" are
// rejected so the server zone can never leak into a user's calculation.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// TodayIn returns the calendar date of nowUTC in loc as YYYY-MM-DD.
// This is the single derivation of "today" shared by IsDue and ShouldSkip.
func TodayIn(loc *time.Location, nowUTC time.Time) string {
	return nowUTC.In(loc).Format(entity.DateLayout)
}

// DueInstant combines today's date in loc with the local time of day and
// returns the resulting instant in UTC. The offset is the one in effect on
// that date, not at nowUTC. For a local time skipped or repeated by a DST
// transition the instant is whatever time.Date resolves it to.
func DueInstant(t entity.TimeOfDay, loc *time.Location, nowUTC time.Time) time.Time {
	local := nowUTC.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc).UTC()
}

// IsDue reports whether the user's send time for today (in timezone, relative
// to nowUTC) falls inside window.
func IsDue(t entity.TimeOfDay, timezone string, window Window, nowUTC time.Time) (bool, error) {
	loc, err := LoadTimezone(timezone)
	if err != nil {
		return false, err
	}
	return window.Contains(DueInstant(t, loc, nowUTC)), nil
}
