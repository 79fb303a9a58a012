package notify

import (
	"context"
	"errors"
	"fmt"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
)

// WorkspacePoster is the transport behind WorkspaceBotChannel.
type WorkspacePoster interface {
	Configured() bool
	PostDirectMessage(ctx context.Context, teamID, userID, subject, body string) error
}

// WorkspaceBotChannel delivers briefings as a direct message from the
// workspace bot. It needs both the workspace user id and team id; the team
// selects which installation's token is used.
type WorkspaceBotChannel struct {
	poster WorkspacePoster
}

// NewWorkspaceBotChannel creates a WorkspaceBotChannel.
func NewWorkspaceBotChannel(poster WorkspacePoster) *WorkspaceBotChannel {
	return &WorkspaceBotChannel{poster: poster}
}

func (c *WorkspaceBotChannel) Name() string         { return string(entity.ChannelWorkspaceBot) }
func (c *WorkspaceBotChannel) Kind() entity.Channel { return entity.ChannelWorkspaceBot }

func (c *WorkspaceBotChannel) IsEnabled() bool {
	return c.poster != nil && c.poster.Configured()
}

// Send posts the briefing to the user's bot DM. A team without an installed
// token reports ErrChannelUnavailable.
func (c *WorkspaceBotChannel) Send(ctx context.Context, identity entity.IdentityBundle, content entity.Content) error {
	if !c.IsEnabled() {
		return fmt.Errorf("workspace bot not configured: %w", ErrChannelUnavailable)
	}
	if !identity.Has(entity.ChannelWorkspaceBot) {
		return fmt.Errorf("workspace bot: %w", ErrIdentityNotLinked)
	}

	body, err := plainText(content)
	if err != nil {
		return fmt.Errorf("workspace bot: %w", err)
	}

	err = c.poster.PostDirectMessage(ctx, identity.WorkspaceTeamID, identity.WorkspaceUserID, content.Subject, body)
	if errors.Is(err, notifier.ErrNotConfigured) {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	return err
}
