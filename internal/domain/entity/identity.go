package entity

// IdentityBundle is the read-only set of channel addresses for one user.
// Any number of fields may be populated; a dispatch consults only the field
// required by the requested channel.
type IdentityBundle struct {
	UserID          string
	Email           string
	BotChatID       *int64
	MessagingPhone  string
	WorkspaceUserID string
	WorkspaceTeamID string
}

// Has reports whether the identity required by ch is present.
func (b IdentityBundle) Has(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return b.Email != ""
	case ChannelBotDM:
		return b.BotChatID != nil && *b.BotChatID != 0
	case ChannelMessagingApp:
		return b.MessagingPhone != ""
	case ChannelWorkspaceBot:
		return b.WorkspaceUserID != "" && b.WorkspaceTeamID != ""
	}
	return false
}
