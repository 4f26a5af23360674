package chat

import "errors"

// Sentinel errors (stable for errors.Is and for mapping to transport status
// codes). Grouped by taxonomy: not-found, conflict, authorization, illegal
// state. All are expected, recoverable business outcomes.
var (
	// Not-found.
	ErrUserNotFound       = errors.New("user not found")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrTokenNotFound      = errors.New("token not found")

	// Conflict.
	ErrNameInUse     = errors.New("channel name already in use")
	ErrEmailInUse    = errors.New("email already in use")
	ErrUsernameInUse = errors.New("username already in use")

	// Authorization.
	ErrNotOwner   = errors.New("has to be the channel owner")
	ErrCannotSend = errors.New("user cannot send messages in this channel")
	ErrCannotRead = errors.New("user cannot read this channel")

	// Credentials are deliberately indistinguishable: unknown email and wrong
	// password both resolve to this error.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoSession is the single failure mode for token resolution; malformed,
	// unknown, and expired tokens are indistinguishable to callers.
	ErrNoSession = errors.New("no session")

	// Illegal state: business-invariant violations the state machine signals
	// explicitly instead of silently no-op'ing.
	ErrGuestAlreadyPresent = errors.New("channel already has a guest")
	ErrNoGuest             = errors.New("channel does not have a guest")
	ErrNotGuest            = errors.New("user is not the channel guest")

	// Malformed input.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound reports whether err is one of the not-found outcomes.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrInvitationNotFound) ||
		errors.Is(err, ErrTokenNotFound)
}

// IsConflict reports whether err is one of the conflict outcomes, including
// the single-channel occupied state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNameInUse) ||
		errors.Is(err, ErrEmailInUse) ||
		errors.Is(err, ErrUsernameInUse) ||
		errors.Is(err, ErrGuestAlreadyPresent)
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrCannotSend) ||
		errors.Is(err, ErrCannotRead)
}
