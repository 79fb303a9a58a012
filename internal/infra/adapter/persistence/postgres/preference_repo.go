package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/repository"
	"daily-briefing/internal/resilience/circuitbreaker"
)

// dailyBriefingJSON is the shape of users.preferences->'daily_briefing'.
type dailyBriefingJSON struct {
	Enabled      bool   `json:"enabled"`
	Time         string `json:"time"`
	Timezone     string `json:"timezone"`
	LastSentDate string `json:"lastSentDate,omitempty"`
	Channel      string `json:"channel,omitempty"`
}

type PreferenceRepo struct {
	db     *circuitbreaker.DBCircuitBreaker
	logger *slog.Logger
}

// NewPreferenceRepo creates a PreferenceRepository reading the
// daily_briefing key of users.preferences.
func NewPreferenceRepo(db *sql.DB) repository.PreferenceRepository {
	return &PreferenceRepo{db: circuitbreaker.NewDBCircuitBreaker(db), logger: slog.Default()}
}

// ListEnabled returns every user whose daily briefing is enabled. A row whose
// JSON cannot be decoded is skipped so one bad document cannot stop the tick.
func (repo *PreferenceRepo) ListEnabled(ctx context.Context) ([]entity.NotificationPreference, error) {
	const query = `
SELECT id, preferences->'daily_briefing'
FROM users
WHERE preferences ? 'daily_briefing'
  AND preferences->'daily_briefing'->'enabled' = 'true'::jsonb
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListEnabled: %w", err)
	}
	defer func() { _ = rows.Close() }()

	prefs := make([]entity.NotificationPreference, 0, 256)
	for rows.Next() {
		var userID string
		var raw []byte
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, fmt.Errorf("ListEnabled: %w", err)
		}

		var doc dailyBriefingJSON
		if err := json.Unmarshal(raw, &doc); err != nil {
			repo.logger.Warn("skipping malformed daily_briefing preference",
				slog.String("user_id", userID),
				slog.Any("error", err))
			continue
		}

		pref := entity.NotificationPreference{
			UserID:       userID,
			Enabled:      doc.Enabled,
			LocalTime:    doc.Time,
			Timezone:     doc.Timezone,
			LastSentDate: doc.LastSentDate,
		}
		if ch, err := entity.ParseChannel(doc.Channel); err == nil {
			pref.Channel = ch
		}
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEnabled: %w", err)
	}
	return prefs, nil
}

// MarkSent stores date as daily_briefing.lastSentDate, leaving the rest of
// the preferences document untouched.
func (repo *PreferenceRepo) MarkSent(ctx context.Context, userID, date string) error {
	const query = `
UPDATE users
SET preferences = jsonb_set(preferences, '{daily_briefing,lastSentDate}', to_jsonb($2::text), true)
WHERE id = $1
  AND preferences ? 'daily_briefing'`
	res, err := repo.db.ExecContext(ctx, query, userID, date)
	if err != nil {
		return fmt.Errorf("MarkSent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkSent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("MarkSent %s: %w", userID, repository.ErrUserNotFound)
	}
	return nil
}
