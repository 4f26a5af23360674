package realtime

import (
	"time"

	"parley/cmd/internal/chat"
)

// Update is the sealed set of events a listener can receive. Event ids are
// monotonic per hub, so a client can detect missed messages across
// reconnects.
type Update interface {
	updateEventID() int64
}

// MessageUpdate carries one committed message.
type MessageUpdate struct {
	EventID int64
	Message chat.Message
}

func (u MessageUpdate) updateEventID() int64 { return u.EventID }

// KeepAlive is a liveness signal; it proves the stream is open when no
// messages flow.
type KeepAlive struct {
	EventID int64
	At      time.Time
}

func (u KeepAlive) updateEventID() int64 { return u.EventID }

// EventID returns the hub-assigned id of an update.
func EventID(u Update) int64 { return u.updateEventID() }
