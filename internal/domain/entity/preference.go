package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// DateLayout is the calendar date format used for LastSentDate and resolved dates.
const DateLayout = "2006-01-02"

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string. Seconds are not accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// NotificationPreference is a user's daily briefing configuration as read
// from the preference store.
//
// LastSentDate is empty or a YYYY-MM-DD date computed in Timezone, never in
// UTC or server-local time. LocalTime is kept in its stored "HH:MM" form so a
// single malformed row can be rejected per user during a scan.
type NotificationPreference struct {
	UserID       string
	Enabled      bool
	LocalTime    string
	Timezone     string
	LastSentDate string
	Channel      Channel
}

// PreferredChannel returns the configured channel, falling back to email.
func (p NotificationPreference) PreferredChannel() Channel {
	if p.Channel.Valid() {
		return p.Channel
	}
	return ChannelEmail
}
