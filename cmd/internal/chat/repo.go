package chat

import (
	"context"
	"time"
)

// UserRepo is the user persistence boundary.
type UserRepo interface {
	// Create inserts u. Uniqueness conflicts map to ErrEmailInUse /
	// ErrUsernameInUse.
	Create(ctx context.Context, u User) (User, error)
	ByID(ctx context.Context, id string) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	ByUsername(ctx context.Context, username string) (User, error)
}

// TokenRepo is the token persistence boundary. Lookups are by fingerprint
// only; the raw token value never reaches the store.
type TokenRepo interface {
	Create(ctx context.Context, t Token) error
	// ByFingerprint returns the token and its owning user, or ErrTokenNotFound.
	ByFingerprint(ctx context.Context, fp string) (User, Token, error)
	UpdateLastUsed(ctx context.Context, fp string, at time.Time) error
	// Remove is idempotent: removing an absent fingerprint is not an error.
	Remove(ctx context.Context, fp string) error
	ByUser(ctx context.Context, userID string) ([]Token, error)
}

// ChannelRepo is the channel persistence boundary. Save translates an
// immutable domain snapshot into persisted row changes (diff-and-write);
// the domain types never touch storage themselves.
type ChannelRepo interface {
	CreateSingle(ctx context.Context, id, name string, owner User) (SingleChannel, error)
	CreateGroup(ctx context.Context, id, name string, owner User, vis Visibility) (GroupChannel, error)
	ByID(ctx context.Context, id string) (Channel, error)
	ByName(ctx context.Context, name string) (Channel, error)
	ByUser(ctx context.Context, userID string) ([]Channel, error)
	ByOwner(ctx context.Context, ownerID string) ([]Channel, error)
	Public(ctx context.Context) ([]Channel, error)
	Save(ctx context.Context, ch Channel) (Channel, error)
	// Delete removes a channel and cascades to memberships, invitations, and
	// messages (child rows before the parent row).
	Delete(ctx context.Context, id string) error
}

// InvitationRepo is the invitation persistence boundary.
type InvitationRepo interface {
	Create(ctx context.Context, inv Invitation) (Invitation, error)
	ByID(ctx context.Context, id string) (Invitation, error)
	ForUser(ctx context.Context, guestID string) ([]Invitation, error)
	Remove(ctx context.Context, id string) error
}

// MessageRepo is the message persistence boundary.
type MessageRepo interface {
	Create(ctx context.Context, m Message) (Message, error)
	// OfChannel returns messages ordered by creation (ids are ULIDs, so id
	// order is creation order).
	OfChannel(ctx context.Context, channelID string) ([]Message, error)
}

// Tx bundles the repositories over one consistent view of the store for the
// duration of a single unit of work.
type Tx interface {
	Users() UserRepo
	Tokens() TokenRepo
	Channels() ChannelRepo
	Invitations() InvitationRepo
	Messages() MessageRepo
}

// Manager supplies atomic units of work: fn's effects commit if it returns
// nil and are discarded otherwise (including panics). Existence checks and
// the mutations that depend on them must share one Run call so check-then-act
// is atomic at the store boundary.
type Manager interface {
	Run(ctx context.Context, fn func(tx Tx) error) error
	// Clear wipes all state. Test support.
	Clear(ctx context.Context) error
}
