package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
)

type fakeEmailSender struct {
	configured bool
	err        error
	sent       []notifier.Email
}

func (f *fakeEmailSender) Configured() bool { return f.configured }
func (f *fakeEmailSender) SendEmail(_ context.Context, e notifier.Email) error {
	f.sent = append(f.sent, e)
	return f.err
}

type fakeBot struct {
	configured bool
	err        error
	chatID     int64
	text       string
}

func (f *fakeBot) Configured() bool { return f.configured }
func (f *fakeBot) SendMessage(_ context.Context, chatID int64, text string) error {
	f.chatID, f.text = chatID, text
	return f.err
}

type fakeTexter struct {
	configured bool
	to, body   string
}

func (f *fakeTexter) Configured() bool { return f.configured }
func (f *fakeTexter) SendText(_ context.Context, to, body string) error {
	f.to, f.body = to, body
	return nil
}

type fakePoster struct {
	configured                    bool
	err                           error
	teamID, userID, subject, body string
}

func (f *fakePoster) Configured() bool { return f.configured }
func (f *fakePoster) PostDirectMessage(_ context.Context, teamID, userID, subject, body string) error {
	f.teamID, f.userID, f.subject, f.body = teamID, userID, subject, body
	return f.err
}

func TestEmailChannel_Send(t *testing.T) {
	sender := &fakeEmailSender{configured: true}
	ch := NewEmailChannel(sender)

	require.True(t, ch.IsEnabled())
	assert.Equal(t, "email", ch.Name())
	assert.Equal(t, entity.ChannelEmail, ch.Kind())

	err := ch.Send(context.Background(), entity.IdentityBundle{Email: "ada@example.com"},
		entity.Content{Subject: "Your Schedule for 2024-01-15", HTML: "<p>Good <b>morning</b></p>"})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Equal(t, "Your Schedule for 2024-01-15", sender.sent[0].Subject)
	assert.Equal(t, "Good morning", sender.sent[0].Text, "text part is derived from HTML")
}

func TestEmailChannel_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		ch   *EmailChannel
	}{
		{name: "nil sender", ch: NewEmailChannel(nil)},
		{name: "unconfigured sender", ch: NewEmailChannel(&fakeEmailSender{})},
		{name: "transport reports unconfigured", ch: NewEmailChannel(&fakeEmailSender{
			configured: true, err: fmt.Errorf("resend: %w", notifier.ErrNotConfigured)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ch.Send(context.Background(), entity.IdentityBundle{Email: "ada@example.com"}, testContent)
			assert.ErrorIs(t, err, ErrChannelUnavailable)
		})
	}
}

func TestEmailChannel_NoAddress(t *testing.T) {
	sender := &fakeEmailSender{configured: true}
	err := NewEmailChannel(sender).Send(context.Background(), entity.IdentityBundle{}, testContent)
	assert.ErrorIs(t, err, ErrIdentityNotLinked)
	assert.Empty(t, sender.sent)
}

func TestBotDMChannel_Send(t *testing.T) {
	bot := &fakeBot{configured: true}
	ch := NewBotDMChannel(bot)

	err := ch.Send(context.Background(), entity.IdentityBundle{BotChatID: chatID(42)},
		entity.Content{Subject: "Your Schedule", Text: "Nothing booked today."})
	require.NoError(t, err)

	assert.Equal(t, int64(42), bot.chatID)
	assert.Equal(t, "Your Schedule\n\nNothing booked today.", bot.text)
}

func TestBotDMChannel_PropagatesClientError(t *testing.T) {
	blocked := &notifier.ClientError{StatusCode: 403, Message: "user blocked bot: Forbidden"}
	ch := NewBotDMChannel(&fakeBot{configured: true, err: blocked})

	err := ch.Send(context.Background(), entity.IdentityBundle{BotChatID: chatID(42)}, testContent)
	var ce *notifier.ClientError
	require.True(t, errors.As(err, &ce))
	assert.NotErrorIs(t, err, ErrChannelUnavailable)
}

func TestBotDMChannel_ZeroChatID(t *testing.T) {
	err := NewBotDMChannel(&fakeBot{configured: true}).Send(context.Background(),
		entity.IdentityBundle{BotChatID: chatID(0)}, testContent)
	assert.ErrorIs(t, err, ErrIdentityNotLinked)
}

func TestMessagingAppChannel_Send(t *testing.T) {
	texter := &fakeTexter{configured: true}
	ch := NewMessagingAppChannel(texter)
	assert.Equal(t, entity.ChannelMessagingApp, ch.Kind())

	err := ch.Send(context.Background(), entity.IdentityBundle{MessagingPhone: "+15551234567"},
		entity.Content{Subject: "Your Schedule", HTML: "<ul><li>09:00 Standup</li><li>14:00 Review</li></ul>"})
	require.NoError(t, err)

	assert.Equal(t, "+15551234567", texter.to)
	assert.Equal(t, "Your Schedule\n\n• 09:00 Standup\n• 14:00 Review", texter.body)
}

func TestMessagingAppChannel_Disabled(t *testing.T) {
	ch := NewMessagingAppChannel(&fakeTexter{})
	assert.False(t, ch.IsEnabled())
	err := ch.Send(context.Background(), entity.IdentityBundle{MessagingPhone: "+15551234567"}, testContent)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestWorkspaceBotChannel_Send(t *testing.T) {
	poster := &fakePoster{configured: true}
	ch := NewWorkspaceBotChannel(poster)

	err := ch.Send(context.Background(), entity.IdentityBundle{WorkspaceUserID: "U123", WorkspaceTeamID: "T9"}, testContent)
	require.NoError(t, err)

	assert.Equal(t, "T9", poster.teamID)
	assert.Equal(t, "U123", poster.userID)
	assert.Equal(t, testContent.Subject, poster.subject)
	assert.Equal(t, "Hi", poster.body)
}

func TestWorkspaceBotChannel_NeedsBothIDs(t *testing.T) {
	poster := &fakePoster{configured: true}
	err := NewWorkspaceBotChannel(poster).Send(context.Background(), entity.IdentityBundle{WorkspaceUserID: "U123"}, testContent)
	assert.ErrorIs(t, err, ErrIdentityNotLinked)
	assert.Empty(t, poster.userID)
}

func TestWorkspaceBotChannel_TeamWithoutToken(t *testing.T) {
	poster := &fakePoster{configured: true, err: fmt.Errorf("slack: no bot token for team T9: %w", notifier.ErrNotConfigured)}
	err := NewWorkspaceBotChannel(poster).Send(context.Background(),
		entity.IdentityBundle{WorkspaceUserID: "U123", WorkspaceTeamID: "T9"}, testContent)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}
