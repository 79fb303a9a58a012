package entity

import (
	"fmt"
	"strings"
)

// Channel identifies one outbound delivery channel for a briefing.
type Channel string

const (
	// ChannelEmail delivers through the email API.
	ChannelEmail Channel = "email"
	// ChannelBotDM delivers as a direct message from the chat bot.
	ChannelBotDM Channel = "bot_dm"
	// ChannelMessagingApp delivers as a text message on the messaging app.
	ChannelMessagingApp Channel = "messaging_app"
	// ChannelWorkspaceBot delivers as a DM from the workspace bot.
	ChannelWorkspaceBot Channel = "workspace_bot"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{ChannelEmail, ChannelBotDM, ChannelMessagingApp, ChannelWorkspaceBot}

// channelAliases maps stored spellings onto canonical channel values.
// Preferences written by older clients use the transport names.
var channelAliases = map[string]Channel{
	"email":         ChannelEmail,
	"bot_dm":        ChannelBotDM,
	"botdm":         ChannelBotDM,
	"telegram":      ChannelBotDM,
	"messaging_app": ChannelMessagingApp,
	"messagingapp":  ChannelMessagingApp,
	"whatsapp":      ChannelMessagingApp,
	"workspace_bot": ChannelWorkspaceBot,
	"workspacebot":  ChannelWorkspaceBot,
	"slack":         ChannelWorkspaceBot,
}

// ParseChannel converts a stored or user supplied channel name into a Channel.
// Matching is case-insensitive. Unknown names return ErrUnknownChannel.
func ParseChannel(s string) (Channel, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if ch, ok := channelAliases[key]; ok {
		return ch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelBotDM, ChannelMessagingApp, ChannelWorkspaceBot:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}
