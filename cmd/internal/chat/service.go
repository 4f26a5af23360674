package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"parley/cmd/internal/ids"
)

// Notifier receives newly committed messages for live fan-out. The service
// layer calls it only after the enclosing unit of work has committed.
type Notifier interface {
	PublishMessage(channelID string, m Message)
}

// ChannelService implements channel lifecycle, membership transitions, and
// messaging. Every operation runs inside one Manager.Run call so existence
// checks and mutations are atomic at the store boundary.
type ChannelService struct {
	log      *slog.Logger
	mgr      Manager
	clock    Clock
	notifier Notifier
}

// NewChannelService constructs a ChannelService. notifier may be nil when no
// live-update fan-out is wanted (tests, batch tools).
func NewChannelService(log *slog.Logger, mgr Manager, clock Clock, notifier Notifier) *ChannelService {
	return &ChannelService{log: log, mgr: mgr, clock: clock, notifier: notifier}
}

// CreateSingle creates a 1:1 channel with an empty guest slot.
func (s *ChannelService) CreateSingle(ctx context.Context, name, ownerID string) (SingleChannel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SingleChannel{}, ErrInvalidInput
	}

	var created SingleChannel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		if err := checkNameFree(ctx, tx, name); err != nil {
			return err
		}
		owner, err := tx.Users().ByID(ctx, ownerID)
		if err != nil {
			return err
		}

		id, err := ids.NewULID(s.clock.Now())
		if err != nil {
			return err
		}
		created, err = tx.Channels().CreateSingle(ctx, id, name, owner)
		return err
	})
	if err != nil {
		return SingleChannel{}, err
	}

	s.log.Info("channel.create", "kind", "single", "channel_id", created.ID, "owner_id", ownerID)
	return created, nil
}

// CreateGroup creates a group channel with the owner as its sole implicit
// full-access member.
func (s *ChannelService) CreateGroup(ctx context.Context, name, ownerID string, vis Visibility) (GroupChannel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GroupChannel{}, ErrInvalidInput
	}
	if vis != VisibilityPublic && vis != VisibilityPrivate {
		return GroupChannel{}, ErrInvalidInput
	}

	var created GroupChannel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		if err := checkNameFree(ctx, tx, name); err != nil {
			return err
		}
		owner, err := tx.Users().ByID(ctx, ownerID)
		if err != nil {
			return err
		}

		id, err := ids.NewULID(s.clock.Now())
		if err != nil {
			return err
		}
		created, err = tx.Channels().CreateGroup(ctx, id, name, owner, vis)
		return err
	})
	if err != nil {
		return GroupChannel{}, err
	}

	s.log.Info("channel.create", "kind", "group", "channel_id", created.ID, "owner_id", ownerID)
	return created, nil
}

// Join adds userID to the channel. Single channels reject a second guest
// with ErrGuestAlreadyPresent; group channels append without deduplication.
func (s *ChannelService) Join(ctx context.Context, channelID, userID string, access AccessLevel) (Channel, error) {
	if access != AccessReadOnly && access != AccessReadWrite {
		return nil, ErrInvalidInput
	}

	var joined Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		user, err := tx.Users().ByID(ctx, userID)
		if err != nil {
			return err
		}

		next, err := ch.AddUser(user, access)
		if err != nil {
			return err
		}
		joined, err = tx.Channels().Save(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// Leave removes userID from the channel. For single channels the caller must
// be the current guest; for group channels a non-member leave is a no-op.
// Preventing the owner from leaving is caller policy: the owner is never
// stored as a guest, so a single-channel owner leave fails ErrNotGuest and a
// group-channel owner leave is a no-op.
func (s *ChannelService) Leave(ctx context.Context, channelID, userID string) (Channel, error) {
	var left Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		user, err := tx.Users().ByID(ctx, userID)
		if err != nil {
			return err
		}

		next, err := ch.RemoveUser(user)
		if err != nil {
			return err
		}
		left, err = tx.Channels().Save(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return left, nil
}

// Delete removes a channel and everything hanging off it. Owner only.
func (s *ChannelService) Delete(ctx context.Context, channelID, callerID string) error {
	return s.mgr.Run(ctx, func(tx Tx) error {
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		if ch.ChannelOwner().ID != callerID {
			return ErrNotOwner
		}
		return tx.Channels().Delete(ctx, channelID)
	})
}

// ByID returns a channel by id.
func (s *ChannelService) ByID(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		var err error
		ch, err = tx.Channels().ByID(ctx, channelID)
		return err
	})
	return ch, err
}

// ByName returns a channel by its unique name.
func (s *ChannelService) ByName(ctx context.Context, name string) (Channel, error) {
	var ch Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		var err error
		ch, err = tx.Channels().ByName(ctx, name)
		return err
	})
	return ch, err
}

// ChannelsByUser returns channels userID owns or is a guest of.
func (s *ChannelService) ChannelsByUser(ctx context.Context, userID string) ([]Channel, error) {
	var out []Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		if _, err := tx.Users().ByID(ctx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.Channels().ByUser(ctx, userID)
		return err
	})
	return out, err
}

// PublicChannels returns all public group channels.
func (s *ChannelService) PublicChannels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	err := s.mgr.Run(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Channels().Public(ctx)
		return err
	})
	return out, err
}

// SendMessage appends a message after verifying send permission, then fans
// it out to live listeners once the unit of work has committed.
func (s *ChannelService) SendMessage(ctx context.Context, channelID, userID, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrInvalidInput
	}

	var created Message
	err := s.mgr.Run(ctx, func(tx Tx) error {
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		user, err := tx.Users().ByID(ctx, userID)
		if err != nil {
			return err
		}
		if !CanSendMessage(ch, user.ID) {
			return ErrCannotSend
		}

		now := s.clock.Now()
		id, err := ids.NewULID(now)
		if err != nil {
			return err
		}
		created, err = tx.Messages().Create(ctx, Message{
			ID:        id,
			ChannelID: channelID,
			SenderID:  user.ID,
			Text:      text,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return Message{}, err
	}

	// Fan-out happens strictly after commit so listeners never observe a
	// message that later rolls back.
	if s.notifier != nil {
		s.notifier.PublishMessage(channelID, created)
	}
	return created, nil
}

// ReadMessages returns the channel history, gated by read access.
func (s *ChannelService) ReadMessages(ctx context.Context, channelID, userID string) ([]Message, error) {
	var out []Message
	err := s.mgr.Run(ctx, func(tx Tx) error {
		user, err := tx.Users().ByID(ctx, userID)
		if err != nil {
			return err
		}
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		if !CanRead(ch, user.ID) {
			return ErrCannotRead
		}
		out, err = tx.Messages().OfChannel(ctx, channelID)
		return err
	})
	return out, err
}

// CanUserRead reports read access for transports that must authorize a
// streaming subscription before any event flows.
func (s *ChannelService) CanUserRead(ctx context.Context, channelID, userID string) (bool, error) {
	var ok bool
	err := s.mgr.Run(ctx, func(tx Tx) error {
		ch, err := tx.Channels().ByID(ctx, channelID)
		if err != nil {
			return err
		}
		ok = CanRead(ch, userID)
		return nil
	})
	return ok, err
}

func checkNameFree(ctx context.Context, tx Tx, name string) error {
	_, err := tx.Channels().ByName(ctx, name)
	if err == nil {
		return ErrNameInUse
	}
	if errors.Is(err, ErrChannelNotFound) {
		return nil
	}
	return err
}
