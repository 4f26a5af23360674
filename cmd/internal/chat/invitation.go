package chat

import "time"

// Invitation is a pending offer for a guest to join a channel with a
// requested access level. Its lifecycle is pending -> accepted (consumed,
// guest joins with the stored access) or pending -> removed (deleted without
// effect). There is no distinct "rejected" state.
type Invitation struct {
	ID        string
	ChannelID string
	GuestID   string
	Access    AccessLevel
	CreatedBy string
	CreatedAt time.Time
}
