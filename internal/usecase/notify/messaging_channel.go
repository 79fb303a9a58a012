package notify

import (
	"context"
	"errors"
	"fmt"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
)

// TextMessenger is the transport behind MessagingAppChannel.
type TextMessenger interface {
	Configured() bool
	SendText(ctx context.Context, to, body string) error
}

// MessagingAppChannel delivers briefings as a messaging app text message.
// It reads IdentityBundle.MessagingPhone.
type MessagingAppChannel struct {
	messenger TextMessenger
}

// NewMessagingAppChannel creates a MessagingAppChannel.
func NewMessagingAppChannel(messenger TextMessenger) *MessagingAppChannel {
	return &MessagingAppChannel{messenger: messenger}
}

func (c *MessagingAppChannel) Name() string         { return string(entity.ChannelMessagingApp) }
func (c *MessagingAppChannel) Kind() entity.Channel { return entity.ChannelMessagingApp }

func (c *MessagingAppChannel) IsEnabled() bool {
	return c.messenger != nil && c.messenger.Configured()
}

// Send texts the briefing to the user's phone number. Long bodies are
// truncated by the transport.
func (c *MessagingAppChannel) Send(ctx context.Context, identity entity.IdentityBundle, content entity.Content) error {
	if !c.IsEnabled() {
		return fmt.Errorf("messaging app not configured: %w", ErrChannelUnavailable)
	}
	if !identity.Has(entity.ChannelMessagingApp) {
		return fmt.Errorf("messaging app: %w", ErrIdentityNotLinked)
	}

	text, err := messageText(content)
	if err != nil {
		return fmt.Errorf("messaging app: %w", err)
	}

	err = c.messenger.SendText(ctx, identity.MessagingPhone, text)
	if errors.Is(err, notifier.ErrNotConfigured) {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	return err
}
