package db

import (
	"database/sql"
)

// MigrateUp creates the tables read by the briefing worker. Preferences live
// in users.preferences under the daily_briefing key:
//
//	{"daily_briefing": {"enabled": true, "time": "08:00", "timezone": "America/New_York",
//	                    "lastSentDate": "2024-01-15", "channel": "email"}}
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    email       TEXT,
    preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	identityTables := []string{
		`
CREATE TABLE IF NOT EXISTS telegram_users (
    id            SERIAL PRIMARY KEY,
    user_id       TEXT REFERENCES users(id) ON DELETE CASCADE,
    telegram_id   BIGINT,
    username      TEXT,
    first_name    TEXT,
    language_code TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS whatsapp_users (
    id           SERIAL PRIMARY KEY,
    user_id      TEXT REFERENCES users(id) ON DELETE CASCADE,
    phone_number TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS slack_users (
    id            SERIAL PRIMARY KEY,
    user_id       TEXT REFERENCES users(id) ON DELETE CASCADE,
    slack_user_id TEXT NOT NULL,
    team_id       TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}
	for _, stmt := range identityTables {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	indexes := []string{
		// ListEnabled scans only users with the briefing turned on
		`CREATE INDEX IF NOT EXISTS idx_users_daily_briefing_enabled ON users ((preferences->'daily_briefing'->'enabled')) WHERE preferences ? 'daily_briefing'`,
		`CREATE INDEX IF NOT EXISTS idx_telegram_users_user_id ON telegram_users(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_whatsapp_users_user_id ON whatsapp_users(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slack_users_user_id ON slack_users(user_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}
