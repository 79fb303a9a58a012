package repository

import (
	"context"

	"daily-briefing/internal/domain/entity"
)

// PreferenceRepository is the preference store consulted once per scheduler tick.
type PreferenceRepository interface {
	// ListEnabled returns every enabled daily briefing preference in one bulk read.
	ListEnabled(ctx context.Context) ([]entity.NotificationPreference, error)
	// MarkSent records date (YYYY-MM-DD in the user's timezone) as the last sent date.
	MarkSent(ctx context.Context, userID, date string) error
}
