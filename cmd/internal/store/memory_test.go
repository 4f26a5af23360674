package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"parley/cmd/internal/chat"
)

func testUser(id, email, username string) chat.User {
	return chat.User{
		ID:                  id,
		Email:               email,
		Username:            username,
		PasswordFingerprint: "fp-" + id,
		CreatedAt:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryRunRollsBackOnError(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Run(ctx, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, testUser("u1", "a@example.com", "alice")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}

	err = m.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().ByID(ctx, "u1")
		return err
	})
	if !errors.Is(err, chat.ErrUserNotFound) {
		t.Fatalf("user survived rollback: err = %v", err)
	}
}

func TestMemoryRunRollsBackOnPanic(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = m.Run(ctx, func(tx chat.Tx) error {
			if _, err := tx.Users().Create(ctx, testUser("u1", "a@example.com", "alice")); err != nil {
				return err
			}
			panic("mid-transaction failure")
		})
	}()

	err := m.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().ByID(ctx, "u1")
		return err
	})
	if !errors.Is(err, chat.ErrUserNotFound) {
		t.Fatalf("user survived panic rollback: err = %v", err)
	}
}

func TestMemoryUserUniqueness(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	mustRun(t, m, func(tx chat.Tx) error {
		_, err := tx.Users().Create(ctx, testUser("u1", "a@example.com", "alice"))
		return err
	})

	err := m.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().Create(ctx, testUser("u2", "a@example.com", "bob"))
		return err
	})
	if !errors.Is(err, chat.ErrEmailInUse) {
		t.Fatalf("duplicate email: err = %v, want ErrEmailInUse", err)
	}

	err = m.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().Create(ctx, testUser("u3", "b@example.com", "alice"))
		return err
	})
	if !errors.Is(err, chat.ErrUsernameInUse) {
		t.Fatalf("duplicate username: err = %v, want ErrUsernameInUse", err)
	}
}

func TestMemoryChannelNameUniqueness(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")

	mustRun(t, m, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, owner); err != nil {
			return err
		}
		_, err := tx.Channels().CreateSingle(ctx, "c1", "lobby", owner)
		return err
	})

	err := m.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Channels().CreateGroup(ctx, "c2", "lobby", owner, chat.VisibilityPublic)
		return err
	})
	if !errors.Is(err, chat.ErrNameInUse) {
		t.Fatalf("duplicate name: err = %v, want ErrNameInUse", err)
	}
}

func TestMemoryChannelDeleteCascades(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")
	guest := testUser("u2", "b@example.com", "bob")
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	mustRun(t, m, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, owner); err != nil {
			return err
		}
		if _, err := tx.Users().Create(ctx, guest); err != nil {
			return err
		}
		if _, err := tx.Channels().CreateGroup(ctx, "c1", "lobby", owner, chat.VisibilityPrivate); err != nil {
			return err
		}
		if _, err := tx.Invitations().Create(ctx, chat.Invitation{
			ID: "i1", ChannelID: "c1", GuestID: guest.ID,
			Access: chat.AccessReadWrite, CreatedBy: owner.ID, CreatedAt: now,
		}); err != nil {
			return err
		}
		_, err := tx.Messages().Create(ctx, chat.Message{
			ID: "m1", ChannelID: "c1", SenderID: owner.ID, Text: "hi", CreatedAt: now,
		})
		return err
	})

	mustRun(t, m, func(tx chat.Tx) error {
		return tx.Channels().Delete(ctx, "c1")
	})

	mustRun(t, m, func(tx chat.Tx) error {
		if _, err := tx.Invitations().ByID(ctx, "i1"); !errors.Is(err, chat.ErrInvitationNotFound) {
			t.Errorf("invitation survived cascade: err = %v", err)
		}
		msgs, err := tx.Messages().OfChannel(ctx, "c1")
		if err != nil {
			return err
		}
		if len(msgs) != 0 {
			t.Errorf("messages survived cascade: %d left", len(msgs))
		}
		return nil
	})
}

func TestMemorySaveRoundTripsGuests(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")
	guest := testUser("u2", "b@example.com", "bob")

	mustRun(t, m, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, owner); err != nil {
			return err
		}
		if _, err := tx.Users().Create(ctx, guest); err != nil {
			return err
		}
		ch, err := tx.Channels().CreateGroup(ctx, "c1", "lobby", owner, chat.VisibilityPrivate)
		if err != nil {
			return err
		}
		next, err := ch.AddUser(guest, chat.AccessReadOnly)
		if err != nil {
			return err
		}
		_, err = tx.Channels().Save(ctx, next)
		return err
	})

	mustRun(t, m, func(tx chat.Tx) error {
		ch, err := tx.Channels().ByID(ctx, "c1")
		if err != nil {
			return err
		}
		g, ok := ch.(chat.GroupChannel)
		if !ok {
			t.Fatalf("channel type = %T, want GroupChannel", ch)
		}
		if len(g.Guests) != 1 || g.Guests[0].User.ID != guest.ID || g.Guests[0].Access != chat.AccessReadOnly {
			t.Fatalf("guests = %+v", g.Guests)
		}
		return nil
	})
}

func TestMemoryTokenLifecycle(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	user := testUser("u1", "a@example.com", "alice")
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	mustRun(t, m, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.Tokens().Create(ctx, chat.Token{
			Fingerprint: "fp1", UserID: user.ID, CreatedAt: created, LastUsedAt: created,
		})
	})

	later := created.Add(10 * time.Minute)
	mustRun(t, m, func(tx chat.Tx) error {
		return tx.Tokens().UpdateLastUsed(ctx, "fp1", later)
	})

	mustRun(t, m, func(tx chat.Tx) error {
		u, tok, err := tx.Tokens().ByFingerprint(ctx, "fp1")
		if err != nil {
			return err
		}
		if u.ID != user.ID {
			t.Errorf("token owner = %s, want %s", u.ID, user.ID)
		}
		if !tok.LastUsedAt.Equal(later) {
			t.Errorf("LastUsedAt = %v, want %v", tok.LastUsedAt, later)
		}
		return nil
	})

	// Remove is idempotent.
	mustRun(t, m, func(tx chat.Tx) error {
		if err := tx.Tokens().Remove(ctx, "fp1"); err != nil {
			return err
		}
		return tx.Tokens().Remove(ctx, "fp1")
	})

	err := m.Run(ctx, func(tx chat.Tx) error {
		_, _, err := tx.Tokens().ByFingerprint(ctx, "fp1")
		return err
	})
	if !errors.Is(err, chat.ErrTokenNotFound) {
		t.Fatalf("removed token lookup: err = %v, want ErrTokenNotFound", err)
	}
}

func TestMemoryClear(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	mustRun(t, m, func(tx chat.Tx) error {
		_, err := tx.Users().Create(ctx, testUser("u1", "a@example.com", "alice"))
		return err
	})
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	err := m.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().ByID(ctx, "u1")
		return err
	})
	if !errors.Is(err, chat.ErrUserNotFound) {
		t.Fatalf("user survived Clear: err = %v", err)
	}
}

func mustRun(t *testing.T, m chat.Manager, fn func(tx chat.Tx) error) {
	t.Helper()
	if err := m.Run(context.Background(), fn); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
