package notify

import (
	"context"
	"errors"
	"fmt"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
)

// BotMessenger is the transport behind BotDMChannel.
type BotMessenger interface {
	Configured() bool
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BotDMChannel delivers briefings as a direct message from the chat bot.
// It reads IdentityBundle.BotChatID.
type BotDMChannel struct {
	bot BotMessenger
}

// NewBotDMChannel creates a BotDMChannel.
func NewBotDMChannel(bot BotMessenger) *BotDMChannel {
	return &BotDMChannel{bot: bot}
}

func (c *BotDMChannel) Name() string         { return string(entity.ChannelBotDM) }
func (c *BotDMChannel) Kind() entity.Channel { return entity.ChannelBotDM }

func (c *BotDMChannel) IsEnabled() bool {
	return c.bot != nil && c.bot.Configured()
}

// Send posts the subject and plain text body to the user's bot chat.
func (c *BotDMChannel) Send(ctx context.Context, identity entity.IdentityBundle, content entity.Content) error {
	if !c.IsEnabled() {
		return fmt.Errorf("bot not configured: %w", ErrChannelUnavailable)
	}
	if !identity.Has(entity.ChannelBotDM) {
		return fmt.Errorf("bot dm: %w", ErrIdentityNotLinked)
	}

	text, err := messageText(content)
	if err != nil {
		return fmt.Errorf("bot dm: %w", err)
	}

	err = c.bot.SendMessage(ctx, *identity.BotChatID, text)
	if errors.Is(err, notifier.ErrNotConfigured) {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	return err
}

// messageText renders content for chat transports: the subject on its own
// line followed by the plain text body.
func messageText(content entity.Content) (string, error) {
	body, err := plainText(content)
	if err != nil {
		return "", err
	}
	if content.Subject == "" {
		return body, nil
	}
	if body == "" {
		return content.Subject, nil
	}
	return content.Subject + "\n\n" + body, nil
}
