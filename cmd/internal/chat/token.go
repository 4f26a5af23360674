package chat

import "time"

// Token is an authentication token record. Only the fingerprint of the raw
// value is stored; the raw token is owned transiently by the client.
type Token struct {
	Fingerprint string
	UserID      string
	CreatedAt   time.Time
	LastUsedAt  time.Time
}
