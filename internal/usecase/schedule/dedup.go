package schedule

import "time"

// ShouldSkip reports whether lastSentDate already equals today's date in
// timezone, i.e. the user has had today's briefing.
func ShouldSkip(lastSentDate, timezone string, nowUTC time.Time) (bool, error) {
	loc, err := LoadTimezone(timezone)
	if err != nil {
		return false, err
	}
	return alreadySent(lastSentDate, TodayIn(loc, nowUTC)), nil
}

func alreadySent(lastSentDate, today string) bool {
	return lastSentDate != "" && lastSentDate == today
}
