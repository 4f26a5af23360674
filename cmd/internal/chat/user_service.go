package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"parley/cmd/internal/ids"
)

// Hasher is the pluggable password-fingerprint capability.
// cmd/security/password satisfies it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// SessionManager issues, resolves, and revokes bearer tokens.
// cmd/internal/auth/session satisfies it.
type SessionManager interface {
	Issue(ctx context.Context, u User) (raw string, expiry time.Time, err error)
	// Resolve returns ErrNoSession for malformed, unknown, and expired tokens
	// alike.
	Resolve(ctx context.Context, raw string) (User, error)
	Revoke(ctx context.Context, raw string) error
}

// UserService implements registration, authentication, and the invitation
// lifecycle.
type UserService struct {
	log      *slog.Logger
	mgr      Manager
	clock    Clock
	hasher   Hasher
	sessions SessionManager
}

// NewUserService constructs a UserService.
func NewUserService(log *slog.Logger, mgr Manager, clock Clock, hasher Hasher, sessions SessionManager) *UserService {
	return &UserService{log: log, mgr: mgr, clock: clock, hasher: hasher, sessions: sessions}
}

// Register creates a user. Email and username are canonicalized and must be
// unique.
func (s *UserService) Register(ctx context.Context, email, username, password string) (User, error) {
	email = NormalizeEmail(email)
	username = NormalizeUsername(username)

	fingerprint, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	var created User
	err = s.mgr.Run(ctx, func(tx Tx) error {
		if _, err := tx.Users().ByUsername(ctx, username); err == nil {
			return ErrUsernameInUse
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		if _, err := tx.Users().ByEmail(ctx, email); err == nil {
			return ErrEmailInUse
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}

		now := s.clock.Now()
		id, err := ids.NewULID(now)
		if err != nil {
			return err
		}
		u, err := NewUser(id, email, username, fingerprint, now)
		if err != nil {
			return err
		}
		created, err = tx.Users().Create(ctx, u)
		return err
	})
	if err != nil {
		return User{}, err
	}

	s.log.Info("user.register", "user_id", created.ID, "username", created.Username)
	return created, nil
}

// Login validates credentials and issues a token. Unknown email and wrong
// password are indistinguishable.
func (s *UserService) Login(ctx context.Context, email, password string) (raw string, expiry time.Time, err error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}

	var user User
	err = s.mgr.Run(ctx, func(tx Tx) error {
		u, err := tx.Users().ByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		ok, err := s.hasher.Verify(u.PasswordFingerprint, password)
		if err != nil || !ok {
			return ErrInvalidCredentials
		}
		user = u
		return nil
	})
	if err != nil {
		return "", time.Time{}, err
	}

	return s.sessions.Issue(ctx, user)
}

// Logout revokes the presented token; idempotent.
func (s *UserService) Logout(ctx context.Context, raw string) error {
	return s.sessions.Revoke(ctx, raw)
}

// ByToken resolves the user owning a valid token, or ErrNoSession.
func (s *UserService) ByToken(ctx context.Context, raw string) (User, error) {
	return s.sessions.Resolve(ctx, raw)
}

// ByID returns a user by id.
func (s *UserService) ByID(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.mgr.Run(ctx, func(tx Tx) error {
		var err error
		u, err = tx.Users().ByID(ctx, userID)
		return err
	})
	return u, err
}

// SendInvitation creates a pending invitation. Only the channel owner may
// invite.
func (s *UserService) SendInvitation(ctx context.Context, ownerID, guestID, channelID string, access AccessLevel) (Invitation, error) {
	if access != AccessReadOnly && access != AccessReadWrite {
		return Invitation{}, ErrInvalidInput
	}

	var created Invitation
	err := s.mgr.Run(ctx, func(tx Tx) error {
		if _, err := tx.Users().ByID(ctx, ownerID); err != nil {
			return err
		}
		guest, err := tx.Users().ByID(ctx, guestID)
		if err != nil {
			return err
		}
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		if ch.ChannelOwner().ID != ownerID {
			return ErrNotOwner
		}

		now := s.clock.Now()
		id, err := ids.NewULID(now)
		if err != nil {
			return err
		}
		created, err = tx.Invitations().Create(ctx, Invitation{
			ID:        id,
			ChannelID: channelID,
			GuestID:   guest.ID,
			Access:    access,
			CreatedBy: ownerID,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return Invitation{}, err
	}

	s.log.Info("invitation.send", "invitation_id", created.ID, "channel_id", channelID, "guest_id", guestID)
	return created, nil
}

// AcceptInvitation joins the invitee with the stored access level and
// consumes the invitation. Both effects share one unit of work: either the
// invitation is removed AND the guest is a member, or neither happened.
func (s *UserService) AcceptInvitation(ctx context.Context, invitationID, userID string) (Channel, error) {
	var joined Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		inv, err := tx.Invitations().ByID(ctx, invitationID)
		if err != nil {
			return err
		}
		user, err := tx.Users().ByID(ctx, userID)
		if err != nil {
			return err
		}
		ch, err := tx.Channels().ByID(ctx, inv.ChannelID)
		if err != nil {
			return err
		}

		next, err := ch.AddUser(user, inv.Access)
		if err != nil {
			return err
		}
		joined, err = tx.Channels().Save(ctx, next)
		if err != nil {
			return err
		}
		return tx.Invitations().Remove(ctx, inv.ID)
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// RemoveInvitation deletes a pending invitation without effect. Only the
// invited guest (decline) or the channel owner (cancel) may remove it.
func (s *UserService) RemoveInvitation(ctx context.Context, invitationID, callerID string) error {
	return s.mgr.Run(ctx, func(tx Tx) error {
		inv, err := tx.Invitations().ByID(ctx, invitationID)
		if err != nil {
			return err
		}
		if callerID != inv.GuestID {
			ch, err := tx.Channels().ByID(ctx, inv.ChannelID)
			if err != nil {
				return err
			}
			if ch.ChannelOwner().ID != callerID {
				return ErrNotOwner
			}
		}
		return tx.Invitations().Remove(ctx, inv.ID)
	})
}

// InvitationsForUser lists pending invitations addressed to userID.
func (s *UserService) InvitationsForUser(ctx context.Context, userID string) ([]Invitation, error) {
	var out []Invitation
	err := s.mgr.Run(ctx, func(tx Tx) error {
		if _, err := tx.Users().ByID(ctx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.Invitations().ForUser(ctx, userID)
		return err
	})
	return out, err
}
