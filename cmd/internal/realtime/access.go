package realtime

import (
	"context"

	"parley/cmd/internal/chat"
)

// Authenticator resolves a bearer token to its user. chat.UserService
// satisfies it.
type Authenticator interface {
	ByToken(ctx context.Context, raw string) (chat.User, error)
}

// ChannelAccess is the authorization and send boundary the transports need.
// chat.ChannelService satisfies it.
type ChannelAccess interface {
	CanUserRead(ctx context.Context, channelID, userID string) (bool, error)
	SendMessage(ctx context.Context, channelID, userID, text string) (chat.Message, error)
}
