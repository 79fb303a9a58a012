package repository

import (
	"context"
	"errors"

	"daily-briefing/internal/domain/entity"
)

// ErrUserNotFound is returned by IdentityRepository when the user does not exist.
var ErrUserNotFound = errors.New("user not found")

// IdentityRepository maps a user to the addresses of every linked channel.
type IdentityRepository interface {
	Resolve(ctx context.Context, userID string) (entity.IdentityBundle, error)
}
