package notify

import (
	"context"
	"errors"
	"fmt"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
)

// EmailSender is the transport behind EmailChannel.
type EmailSender interface {
	Configured() bool
	SendEmail(ctx context.Context, email notifier.Email) error
}

// EmailChannel delivers briefings by email. It reads IdentityBundle.Email.
type EmailChannel struct {
	sender EmailSender
}

// NewEmailChannel creates an EmailChannel. A nil or unconfigured sender
// leaves the channel disabled.
func NewEmailChannel(sender EmailSender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

// Name returns "email".
func (c *EmailChannel) Name() string { return string(entity.ChannelEmail) }

// Kind returns entity.ChannelEmail.
func (c *EmailChannel) Kind() entity.Channel { return entity.ChannelEmail }

// IsEnabled reports whether the email service is configured.
func (c *EmailChannel) IsEnabled() bool {
	return c.sender != nil && c.sender.Configured()
}

// Send emails content to identity.Email. The text part is derived from the
// HTML when content has none.
func (c *EmailChannel) Send(ctx context.Context, identity entity.IdentityBundle, content entity.Content) error {
	if !c.IsEnabled() {
		return fmt.Errorf("email service not configured: %w", ErrChannelUnavailable)
	}
	if !identity.Has(entity.ChannelEmail) {
		return fmt.Errorf("email: %w", ErrIdentityNotLinked)
	}

	text, err := plainText(content)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	err = c.sender.SendEmail(ctx, notifier.Email{
		To:      identity.Email,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    text,
	})
	if errors.Is(err, notifier.ErrNotConfigured) {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	return err
}
