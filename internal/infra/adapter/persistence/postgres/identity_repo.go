package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/repository"
	"daily-briefing/internal/resilience/circuitbreaker"
)

type IdentityRepo struct {
	db     *circuitbreaker.DBCircuitBreaker
	logger *slog.Logger
}

// NewIdentityRepo creates an IdentityRepository backed by the channel
// identity tables.
func NewIdentityRepo(db *sql.DB) repository.IdentityRepository {
	return &IdentityRepo{db: circuitbreaker.NewDBCircuitBreaker(db), logger: slog.Default()}
}

// Resolve loads the user's email and the most recently linked identity of
// every chat channel. Stored addresses that fail validation are treated as
// not linked.
func (repo *IdentityRepo) Resolve(ctx context.Context, userID string) (entity.IdentityBundle, error) {
	const query = `
SELECT u.email, tu.telegram_id, wu.phone_number, su.slack_user_id, su.team_id
FROM users u
LEFT JOIN LATERAL (
    SELECT telegram_id FROM telegram_users
    WHERE user_id = u.id AND telegram_id IS NOT NULL
    ORDER BY created_at DESC LIMIT 1
) tu ON TRUE
LEFT JOIN LATERAL (
    SELECT phone_number FROM whatsapp_users
    WHERE user_id = u.id
    ORDER BY created_at DESC LIMIT 1
) wu ON TRUE
LEFT JOIN LATERAL (
    SELECT slack_user_id, team_id FROM slack_users
    WHERE user_id = u.id
    ORDER BY created_at DESC LIMIT 1
) su ON TRUE
WHERE u.id = $1`

	rows, err := repo.db.QueryContext(ctx, query, userID)
	if err != nil {
		return entity.IdentityBundle{}, fmt.Errorf("Resolve: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return entity.IdentityBundle{}, fmt.Errorf("Resolve: %w", err)
		}
		return entity.IdentityBundle{}, fmt.Errorf("Resolve %s: %w", userID, repository.ErrUserNotFound)
	}

	var (
		email, phone, slackUser, slackTeam sql.NullString
		chatID                             sql.NullInt64
	)
	if err := rows.Scan(&email, &chatID, &phone, &slackUser, &slackTeam); err != nil {
		return entity.IdentityBundle{}, fmt.Errorf("Resolve: %w", err)
	}

	bundle := entity.IdentityBundle{
		UserID:          userID,
		WorkspaceUserID: slackUser.String,
		WorkspaceTeamID: slackTeam.String,
	}
	if addr := strings.TrimSpace(email.String); addr != "" {
		if err := entity.ValidateEmail(addr); err != nil {
			repo.logger.Warn("ignoring invalid email on file", slog.String("user_id", userID), slog.Any("error", err))
		} else {
			bundle.Email = addr
		}
	}
	if number := strings.TrimSpace(phone.String); number != "" {
		if err := entity.ValidatePhone(number); err != nil {
			repo.logger.Warn("ignoring invalid phone number on file", slog.String("user_id", userID), slog.Any("error", err))
		} else {
			bundle.MessagingPhone = number
		}
	}
	if chatID.Valid {
		id := chatID.Int64
		bundle.BotChatID = &id
	}
	return bundle, nil
}
