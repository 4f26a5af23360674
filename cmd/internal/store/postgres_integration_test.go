package store

// Integration tests for the Postgres store. Enabled when
// PARLEY_TEST_DATABASE_URL is set; each test runs in its own schema so tests
// can run in parallel against one database.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"parley/cmd/internal/chat"
)

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PARLEY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PARLEY_TEST_DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	schema := "parley_test_" + hex.EncodeToString(buf[:])

	ctx := context.Background()
	if _, err := pool.Exec(ctx, `CREATE SCHEMA "`+schema+`"`); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
	})

	mustApplySchema(t, pool, schema)
	return schema
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ddl := []string{
		`CREATE TABLE ` + pgIdent(schema, "users") + ` (
			id                   text PRIMARY KEY,
			email                text NOT NULL,
			username             text NOT NULL,
			password_fingerprint text NOT NULL,
			created_at           timestamptz NOT NULL,
			CONSTRAINT users_email_key UNIQUE (email),
			CONSTRAINT users_username_key UNIQUE (username)
		)`,
		`CREATE TABLE ` + pgIdent(schema, "tokens") + ` (
			fingerprint  text PRIMARY KEY,
			user_id      text NOT NULL REFERENCES ` + pgIdent(schema, "users") + `(id),
			created_at   timestamptz NOT NULL,
			last_used_at timestamptz NOT NULL
		)`,
		`CREATE TABLE ` + pgIdent(schema, "channels") + ` (
			id         text PRIMARY KEY,
			name       text NOT NULL,
			owner_id   text NOT NULL REFERENCES ` + pgIdent(schema, "users") + `(id),
			kind       text NOT NULL CHECK (kind IN ('single', 'group')),
			visibility text,
			CONSTRAINT channels_name_key UNIQUE (name)
		)`,
		`CREATE TABLE ` + pgIdent(schema, "channel_guests") + ` (
			seq        bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			channel_id text NOT NULL REFERENCES ` + pgIdent(schema, "channels") + `(id),
			user_id    text NOT NULL REFERENCES ` + pgIdent(schema, "users") + `(id),
			access     text NOT NULL CHECK (access IN ('read_only', 'read_write'))
		)`,
		`CREATE TABLE ` + pgIdent(schema, "invitations") + ` (
			id         text PRIMARY KEY,
			channel_id text NOT NULL REFERENCES ` + pgIdent(schema, "channels") + `(id),
			guest_id   text NOT NULL REFERENCES ` + pgIdent(schema, "users") + `(id),
			access     text NOT NULL CHECK (access IN ('read_only', 'read_write')),
			created_by text NOT NULL REFERENCES ` + pgIdent(schema, "users") + `(id),
			created_at timestamptz NOT NULL
		)`,
		`CREATE TABLE ` + pgIdent(schema, "messages") + ` (
			id         text PRIMARY KEY,
			channel_id text NOT NULL REFERENCES ` + pgIdent(schema, "channels") + `(id),
			sender_id  text NOT NULL REFERENCES ` + pgIdent(schema, "users") + `(id),
			body       text NOT NULL,
			created_at timestamptz NOT NULL
		)`,
	}

	ctx := context.Background()
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
}

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	pool := mustOpenTestPool(t)
	schema := mustCreateTestSchema(t, pool)
	st, err := NewPostgres(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	return st
}

func TestPostgresRunRollsBackOnError(t *testing.T) {
	t.Parallel()

	st := newTestPostgres(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Run(ctx, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, testUser("u1", "a@example.com", "alice")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}

	err = st.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().ByID(ctx, "u1")
		return err
	})
	if !errors.Is(err, chat.ErrUserNotFound) {
		t.Fatalf("user survived rollback: err = %v", err)
	}
}

func TestPostgresUniqueViolationsMapToDomainErrors(t *testing.T) {
	t.Parallel()

	st := newTestPostgres(t)
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")

	mustRun(t, st, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, owner); err != nil {
			return err
		}
		_, err := tx.Channels().CreateGroup(ctx, "c1", "lobby", owner, chat.VisibilityPublic)
		return err
	})

	err := st.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().Create(ctx, testUser("u2", "a@example.com", "bob"))
		return err
	})
	if !errors.Is(err, chat.ErrEmailInUse) {
		t.Fatalf("duplicate email: err = %v, want ErrEmailInUse", err)
	}

	err = st.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Users().Create(ctx, testUser("u3", "b@example.com", "alice"))
		return err
	})
	if !errors.Is(err, chat.ErrUsernameInUse) {
		t.Fatalf("duplicate username: err = %v, want ErrUsernameInUse", err)
	}

	err = st.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Channels().CreateSingle(ctx, "c2", "lobby", owner)
		return err
	})
	if !errors.Is(err, chat.ErrNameInUse) {
		t.Fatalf("duplicate channel name: err = %v, want ErrNameInUse", err)
	}
}

func TestPostgresChannelRoundTrip(t *testing.T) {
	t.Parallel()

	st := newTestPostgres(t)
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")
	guest := testUser("u2", "b@example.com", "bob")

	mustRun(t, st, func(tx chat.Tx) error {
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

	mustRun(t, st, func(tx chat.Tx) error {
		ch, err := tx.Channels().ByID(ctx, "c1")
		if err != nil {
			return err
		}
		g, ok := ch.(chat.GroupChannel)
		if !ok {
			t.Fatalf("channel type = %T, want GroupChannel", ch)
		}
		if g.Visibility != chat.VisibilityPrivate {
			t.Errorf("visibility = %s, want private", g.Visibility)
		}
		if len(g.Guests) != 1 || g.Guests[0].User.ID != guest.ID || g.Guests[0].Access != chat.AccessReadOnly {
			t.Fatalf("guests = %+v", g.Guests)
		}

		byUser, err := tx.Channels().ByUser(ctx, guest.ID)
		if err != nil {
			return err
		}
		if len(byUser) != 1 || byUser[0].ChannelID() != "c1" {
			t.Fatalf("ByUser = %+v", byUser)
		}
		return nil
	})
}

func TestPostgresSingleChannelGuestSlot(t *testing.T) {
	t.Parallel()

	st := newTestPostgres(t)
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")
	guest := testUser("u2", "b@example.com", "bob")

	mustRun(t, st, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, owner); err != nil {
			return err
		}
		if _, err := tx.Users().Create(ctx, guest); err != nil {
			return err
		}
		ch, err := tx.Channels().CreateSingle(ctx, "c1", "alice-bob", owner)
		if err != nil {
			return err
		}
		next, err := ch.AddUser(guest, chat.AccessReadWrite)
		if err != nil {
			return err
		}
		_, err = tx.Channels().Save(ctx, next)
		return err
	})

	mustRun(t, st, func(tx chat.Tx) error {
		ch, err := tx.Channels().ByID(ctx, "c1")
		if err != nil {
			return err
		}
		sc, ok := ch.(chat.SingleChannel)
		if !ok {
			t.Fatalf("channel type = %T, want SingleChannel", ch)
		}
		if sc.Guest == nil || sc.Guest.ID != guest.ID {
			t.Fatalf("guest = %+v, want %s", sc.Guest, guest.ID)
		}
		return nil
	})
}

func TestPostgresChannelDeleteCascades(t *testing.T) {
	t.Parallel()

	st := newTestPostgres(t)
	ctx := context.Background()
	owner := testUser("u1", "a@example.com", "alice")
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	mustRun(t, st, func(tx chat.Tx) error {
		if _, err := tx.Users().Create(ctx, owner); err != nil {
			return err
		}
		if _, err := tx.Channels().CreateGroup(ctx, "c1", "lobby", owner, chat.VisibilityPublic); err != nil {
			return err
		}
		if _, err := tx.Invitations().Create(ctx, chat.Invitation{
			ID: "i1", ChannelID: "c1", GuestID: owner.ID,
			Access: chat.AccessReadWrite, CreatedBy: owner.ID, CreatedAt: now,
		}); err != nil {
			return err
		}
		_, err := tx.Messages().Create(ctx, chat.Message{
			ID: "m1", ChannelID: "c1", SenderID: owner.ID, Text: "hi", CreatedAt: now,
		})
		return err
	})

	mustRun(t, st, func(tx chat.Tx) error {
		return tx.Channels().Delete(ctx, "c1")
	})

	err := st.Run(ctx, func(tx chat.Tx) error {
		_, err := tx.Channels().ByID(ctx, "c1")
		return err
	})
	if !errors.Is(err, chat.ErrChannelNotFound) {
		t.Fatalf("channel survived delete: err = %v", err)
	}
}
