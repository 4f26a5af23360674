package chat

// Visibility controls who may observe a group channel.
type Visibility string

const (
	// VisibilityPublic channels can be read (and written) by any user.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate channels are restricted to their members.
	VisibilityPrivate Visibility = "private"
)

// AccessLevel is the permission granted to a group guest.
type AccessLevel string

const (
	// AccessReadOnly guests may read but not send.
	AccessReadOnly AccessLevel = "read_only"
	// AccessReadWrite guests may read and send.
	AccessReadWrite AccessLevel = "read_write"
)

// Member pairs a guest with the access level they were granted.
type Member struct {
	User   User
	Access AccessLevel
}

// Channel is a closed variant type with exactly two implementations:
// SingleChannel and GroupChannel. Implementations are immutable values;
// AddUser/RemoveUser return new snapshots and never mutate in place. The
// store layer is responsible for diffing a returned snapshot into row
// changes.
type Channel interface {
	ChannelID() string
	ChannelName() string
	ChannelOwner() User

	// AddUser returns a snapshot with u added. Single channels ignore the
	// access level and fail with ErrGuestAlreadyPresent when occupied. Group
	// channels append without deduplication; preventing duplicate adds is the
	// caller's responsibility.
	AddUser(u User, access AccessLevel) (Channel, error)

	// RemoveUser returns a snapshot with u removed. Single channels fail with
	// ErrNoGuest / ErrNotGuest; group channels treat an absent user as a
	// no-op.
	RemoveUser(u User) (Channel, error)

	// sealed restricts implementations to this package.
	sealed()
}

// SingleChannel is a 1:1 channel: an owner plus at most one guest.
type SingleChannel struct {
	ID    string
	Name  string
	Owner User
	Guest *User
}

func (c SingleChannel) ChannelID() string   { return c.ID }
func (c SingleChannel) ChannelName() string { return c.Name }
func (c SingleChannel) ChannelOwner() User  { return c.Owner }
func (SingleChannel) sealed()               {}

// AddUser fills the guest slot. It never overwrites an existing guest.
func (c SingleChannel) AddUser(u User, _ AccessLevel) (Channel, error) {
	if c.Guest != nil {
		return nil, ErrGuestAlreadyPresent
	}
	c.Guest = &u
	return c, nil
}

// RemoveUser empties the guest slot. The target must be the current guest.
func (c SingleChannel) RemoveUser(u User) (Channel, error) {
	if c.Guest == nil {
		return nil, ErrNoGuest
	}
	if c.Guest.ID != u.ID {
		return nil, ErrNotGuest
	}
	c.Guest = nil
	return c, nil
}

// GroupChannel is a many-member channel with a visibility mode and per-guest
// access levels. The owner is not stored as a guest and implicitly holds full
// access.
type GroupChannel struct {
	ID         string
	Name       string
	Owner      User
	Visibility Visibility
	Guests     []Member
}

func (c GroupChannel) ChannelID() string   { return c.ID }
func (c GroupChannel) ChannelName() string { return c.Name }
func (c GroupChannel) ChannelOwner() User  { return c.Owner }
func (GroupChannel) sealed()               {}

// AddUser appends u with the given access level.
func (c GroupChannel) AddUser(u User, access AccessLevel) (Channel, error) {
	guests := make([]Member, 0, len(c.Guests)+1)
	guests = append(guests, c.Guests...)
	guests = append(guests, Member{User: u, Access: access})
	c.Guests = guests
	return c, nil
}

// RemoveUser deletes every entry matching u; absent users are a no-op, so a
// repeated remove is idempotent.
func (c GroupChannel) RemoveUser(u User) (Channel, error) {
	guests := make([]Member, 0, len(c.Guests))
	for _, m := range c.Guests {
		if m.User.ID != u.ID {
			guests = append(guests, m)
		}
	}
	c.Guests = guests
	return c, nil
}

// IsMember reports whether userID is currently the owner or a guest of ch.
func IsMember(ch Channel, userID string) bool {
	if ch.ChannelOwner().ID == userID {
		return true
	}
	switch c := ch.(type) {
	case SingleChannel:
		return c.Guest != nil && c.Guest.ID == userID
	case GroupChannel:
		for _, m := range c.Guests {
			if m.User.ID == userID {
				return true
			}
		}
	}
	return false
}

// CanSendMessage reports whether userID may post to ch: public group
// channels accept anyone; otherwise the owner, the single-channel guest, or
// a group guest holding read-write access. Duplicate group entries resolve
// most-permissive-wins.
func CanSendMessage(ch Channel, userID string) bool {
	if ch.ChannelOwner().ID == userID {
		return true
	}
	switch c := ch.(type) {
	case SingleChannel:
		return c.Guest != nil && c.Guest.ID == userID
	case GroupChannel:
		if c.Visibility == VisibilityPublic {
			return true
		}
		for _, m := range c.Guests {
			if m.User.ID == userID && m.Access == AccessReadWrite {
				return true
			}
		}
	}
	return false
}

// CanRead reports whether userID may observe ch: public group channels are
// readable by anyone; otherwise membership at any access level suffices.
func CanRead(ch Channel, userID string) bool {
	if g, ok := ch.(GroupChannel); ok && g.Visibility == VisibilityPublic {
		return true
	}
	return IsMember(ch, userID)
}
