package chat

import "time"

// Message is an immutable, append-only chat entry.
type Message struct {
	ID        string
	ChannelID string
	SenderID  string
	Text      string
	CreatedAt time.Time
}
