package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parley/cmd/internal/chat"
)

// Postgres is the chat.Manager backed by PostgreSQL.
//
// Ownership model:
// - Postgres does NOT own the pgx pool. The caller must close the pool.
//
// Each Run call is one transaction at read-committed isolation; fn's effects
// commit together or roll back together.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures Postgres behavior.
type PostgresOption func(*Postgres) error

// WithSchema sets the DB schema used by this store (default: "parley").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *Postgres) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("store: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("store: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgres constructs a Postgres-backed chat.Manager.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	st := &Postgres{
		pool:   pool,
		schema: "parley",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("store: nil pool")
	}
	return st, nil
}

// Run executes fn inside one transaction.
func (s *Postgres) Run(ctx context.Context, fn func(tx chat.Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("store: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(pgTx{tx: tx, schema: s.schema}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Clear wipes all rows, children before parents. Test support.
func (s *Postgres) Clear(ctx context.Context) error {
	return s.Run(ctx, func(tx chat.Tx) error {
		p := tx.(pgTx)
		for _, table := range []string{"messages", "invitations", "channel_guests", "channels", "tokens", "users"} {
			if _, err := p.tx.Exec(ctx, `DELETE FROM `+pgIdent(p.schema, table)); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

type pgTx struct {
	tx     pgx.Tx
	schema string
}

func (t pgTx) Users() chat.UserRepo             { return pgUsers{t} }
func (t pgTx) Tokens() chat.TokenRepo           { return pgTokens{t} }
func (t pgTx) Channels() chat.ChannelRepo       { return pgChannels{t} }
func (t pgTx) Invitations() chat.InvitationRepo { return pgInvitations{t} }
func (t pgTx) Messages() chat.MessageRepo       { return pgMessages{t} }

func (t pgTx) ident(table string) string { return pgIdent(t.schema, table) }

const userColumns = `id, email, username, password_fingerprint, created_at`

func scanUser(row pgx.Row) (chat.User, error) {
	var u chat.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordFingerprint, &u.CreatedAt)
	return u, err
}

type pgUsers struct{ t pgTx }

func (r pgUsers) Create(ctx context.Context, u chat.User) (chat.User, error) {
	_, err := r.t.tx.Exec(ctx,
		`INSERT INTO `+r.t.ident("users")+` (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Username, u.PasswordFingerprint, u.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch {
			case strings.Contains(constraint, "email"):
				return chat.User{}, chat.ErrEmailInUse
			case strings.Contains(constraint, "username"):
				return chat.User{}, chat.ErrUsernameInUse
			}
		}
		return chat.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r pgUsers) ByID(ctx context.Context, id string) (chat.User, error) {
	u, err := scanUser(r.t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+r.t.ident("users")+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, err
}

func (r pgUsers) ByEmail(ctx context.Context, email string) (chat.User, error) {
	u, err := scanUser(r.t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+r.t.ident("users")+` WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, err
}

func (r pgUsers) ByUsername(ctx context.Context, username string) (chat.User, error) {
	u, err := scanUser(r.t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+r.t.ident("users")+` WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, err
}

type pgTokens struct{ t pgTx }

func (r pgTokens) Create(ctx context.Context, tok chat.Token) error {
	_, err := r.t.tx.Exec(ctx,
		`INSERT INTO `+r.t.ident("tokens")+` (fingerprint, user_id, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4)`,
		tok.Fingerprint, tok.UserID, tok.CreatedAt, tok.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r pgTokens) ByFingerprint(ctx context.Context, fp string) (chat.User, chat.Token, error) {
	var (
		u   chat.User
		tok chat.Token
	)
	err := r.t.tx.QueryRow(ctx,
		`SELECT t.fingerprint, t.user_id, t.created_at, t.last_used_at,
		        u.id, u.email, u.username, u.password_fingerprint, u.created_at
		   FROM `+r.t.ident("tokens")+` t
		   JOIN `+r.t.ident("users")+` u ON u.id = t.user_id
		  WHERE t.fingerprint = $1`,
		fp,
	).Scan(&tok.Fingerprint, &tok.UserID, &tok.CreatedAt, &tok.LastUsedAt,
		&u.ID, &u.Email, &u.Username, &u.PasswordFingerprint, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, chat.Token{}, chat.ErrTokenNotFound
	}
	return u, tok, err
}

func (r pgTokens) UpdateLastUsed(ctx context.Context, fp string, at time.Time) error {
	tag, err := r.t.tx.Exec(ctx,
		`UPDATE `+r.t.ident("tokens")+` SET last_used_at = $2 WHERE fingerprint = $1`,
		fp, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrTokenNotFound
	}
	return nil
}

func (r pgTokens) Remove(ctx context.Context, fp string) error {
	_, err := r.t.tx.Exec(ctx,
		`DELETE FROM `+r.t.ident("tokens")+` WHERE fingerprint = $1`, fp)
	return err
}

func (r pgTokens) ByUser(ctx context.Context, userID string) ([]chat.Token, error) {
	rows, err := r.t.tx.Query(ctx,
		`SELECT fingerprint, user_id, created_at, last_used_at
		   FROM `+r.t.ident("tokens")+`
		  WHERE user_id = $1
		  ORDER BY fingerprint ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Token
	for rows.Next() {
		var tok chat.Token
		if err := rows.Scan(&tok.Fingerprint, &tok.UserID, &tok.CreatedAt, &tok.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

type pgChannels struct{ t pgTx }

func (r pgChannels) CreateSingle(ctx context.Context, id, name string, owner chat.User) (chat.SingleChannel, error) {
	if err := r.insertChannel(ctx, id, name, owner.ID, "single", nil); err != nil {
		return chat.SingleChannel{}, err
	}
	return chat.SingleChannel{ID: id, Name: name, Owner: owner}, nil
}

func (r pgChannels) CreateGroup(ctx context.Context, id, name string, owner chat.User, vis chat.Visibility) (chat.GroupChannel, error) {
	v := string(vis)
	if err := r.insertChannel(ctx, id, name, owner.ID, "group", &v); err != nil {
		return chat.GroupChannel{}, err
	}
	return chat.GroupChannel{ID: id, Name: name, Owner: owner, Visibility: vis}, nil
}

func (r pgChannels) insertChannel(ctx context.Context, id, name, ownerID, kind string, visibility *string) error {
	_, err := r.t.tx.Exec(ctx,
		`INSERT INTO `+r.t.ident("channels")+` (id, name, owner_id, kind, visibility)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, name, ownerID, kind, visibility,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && strings.Contains(constraint, "name") {
			return chat.ErrNameInUse
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r pgChannels) ByID(ctx context.Context, id string) (chat.Channel, error) {
	return r.loadOne(ctx, `WHERE c.id = $1`, id)
}

func (r pgChannels) ByName(ctx context.Context, name string) (chat.Channel, error) {
	return r.loadOne(ctx, `WHERE c.name = $1`, name)
}

func (r pgChannels) loadOne(ctx context.Context, where string, arg any) (chat.Channel, error) {
	var (
		id, name, kind string
		visibility     *string
		owner          chat.User
	)
	err := r.t.tx.QueryRow(ctx,
		`SELECT c.id, c.name, c.kind, c.visibility,
		        u.id, u.email, u.username, u.password_fingerprint, u.created_at
		   FROM `+r.t.ident("channels")+` c
		   JOIN `+r.t.ident("users")+` u ON u.id = c.owner_id
		  `+where,
		arg,
	).Scan(&id, &name, &kind, &visibility,
		&owner.ID, &owner.Email, &owner.Username, &owner.PasswordFingerprint, &owner.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, id, name, kind, visibility, owner)
}

// assemble builds the domain value from its rows. An unknown kind
// discriminant means the table was written by something that is not this
// code, so it panics rather than guessing.
func (r pgChannels) assemble(ctx context.Context, id, name, kind string, visibility *string, owner chat.User) (chat.Channel, error) {
	guests, err := r.loadGuests(ctx, id)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "single":
		ch := chat.SingleChannel{ID: id, Name: name, Owner: owner}
		if len(guests) > 0 {
			g := guests[0].User
			ch.Guest = &g
		}
		return ch, nil
	case "group":
		var vis chat.Visibility
		if visibility != nil {
			vis = chat.Visibility(*visibility)
		}
		return chat.GroupChannel{ID: id, Name: name, Owner: owner, Visibility: vis, Guests: guests}, nil
	default:
		panic(fmt.Sprintf("store: channel %s has unknown kind %q", id, kind))
	}
}

func (r pgChannels) loadGuests(ctx context.Context, channelID string) ([]chat.Member, error) {
	rows, err := r.t.tx.Query(ctx,
		`SELECT g.access,
		        u.id, u.email, u.username, u.password_fingerprint, u.created_at
		   FROM `+r.t.ident("channel_guests")+` g
		   JOIN `+r.t.ident("users")+` u ON u.id = g.user_id
		  WHERE g.channel_id = $1
		  ORDER BY g.seq ASC`,
		channelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Member
	for rows.Next() {
		var (
			access string
			u      chat.User
		)
		if err := rows.Scan(&access, &u.ID, &u.Email, &u.Username, &u.PasswordFingerprint, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, chat.Member{User: u, Access: chat.AccessLevel(access)})
	}
	return out, rows.Err()
}

func (r pgChannels) ByUser(ctx context.Context, userID string) ([]chat.Channel, error) {
	return r.loadMany(ctx,
		`SELECT c.id FROM `+r.t.ident("channels")+` c
		  WHERE c.owner_id = $1
		     OR EXISTS (SELECT 1 FROM `+r.t.ident("channel_guests")+` g
		                 WHERE g.channel_id = c.id AND g.user_id = $1)
		  ORDER BY c.id ASC`,
		userID)
}

func (r pgChannels) ByOwner(ctx context.Context, ownerID string) ([]chat.Channel, error) {
	return r.loadMany(ctx,
		`SELECT id FROM `+r.t.ident("channels")+` WHERE owner_id = $1 ORDER BY id ASC`,
		ownerID)
}

func (r pgChannels) Public(ctx context.Context) ([]chat.Channel, error) {
	return r.loadMany(ctx,
		`SELECT id FROM `+r.t.ident("channels")+`
		  WHERE kind = 'group' AND visibility = 'public'
		  ORDER BY id ASC`)
}

func (r pgChannels) loadMany(ctx context.Context, query string, args ...any) ([]chat.Channel, error) {
	rows, err := r.t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}

	out := make([]chat.Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := r.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// Save rewrites the guest rows from the domain snapshot. Membership lists
// are small, so delete-and-reinsert beats diffing rows.
func (r pgChannels) Save(ctx context.Context, ch chat.Channel) (chat.Channel, error) {
	var visibility *string
	if g, ok := ch.(chat.GroupChannel); ok {
		v := string(g.Visibility)
		visibility = &v
	}

	tag, err := r.t.tx.Exec(ctx,
		`UPDATE `+r.t.ident("channels")+` SET name = $2, visibility = $3 WHERE id = $1`,
		ch.ChannelID(), ch.ChannelName(), visibility,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, chat.ErrChannelNotFound
	}

	if _, err := r.t.tx.Exec(ctx,
		`DELETE FROM `+r.t.ident("channel_guests")+` WHERE channel_id = $1`,
		ch.ChannelID(),
	); err != nil {
		return nil, err
	}

	for _, m := range guestRows(ch) {
		if _, err := r.t.tx.Exec(ctx,
			`INSERT INTO `+r.t.ident("channel_guests")+` (channel_id, user_id, access)
			 VALUES ($1, $2, $3)`,
			ch.ChannelID(), m.User.ID, string(m.Access),
		); err != nil {
			return nil, fmt.Errorf("insert guest: %w", err)
		}
	}
	return ch, nil
}

func guestRows(ch chat.Channel) []chat.Member {
	switch c := ch.(type) {
	case chat.SingleChannel:
		if c.Guest == nil {
			return nil
		}
		return []chat.Member{{User: *c.Guest, Access: chat.AccessReadWrite}}
	case chat.GroupChannel:
		return c.Guests
	default:
		panic(fmt.Sprintf("store: unknown channel type %T", ch))
	}
}

func (r pgChannels) Delete(ctx context.Context, id string) error {
	// Children before parent.
	for _, table := range []string{"messages", "invitations", "channel_guests"} {
		if _, err := r.t.tx.Exec(ctx,
			`DELETE FROM `+r.t.ident(table)+` WHERE channel_id = $1`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	tag, err := r.t.tx.Exec(ctx,
		`DELETE FROM `+r.t.ident("channels")+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrChannelNotFound
	}
	return nil
}

type pgInvitations struct{ t pgTx }

func (r pgInvitations) Create(ctx context.Context, inv chat.Invitation) (chat.Invitation, error) {
	_, err := r.t.tx.Exec(ctx,
		`INSERT INTO `+r.t.ident("invitations")+` (id, channel_id, guest_id, access, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		inv.ID, inv.ChannelID, inv.GuestID, string(inv.Access), inv.CreatedBy, inv.CreatedAt,
	)
	if err != nil {
		return chat.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

func (r pgInvitations) ByID(ctx context.Context, id string) (chat.Invitation, error) {
	var (
		inv    chat.Invitation
		access string
	)
	err := r.t.tx.QueryRow(ctx,
		`SELECT id, channel_id, guest_id, access, created_by, created_at
		   FROM `+r.t.ident("invitations")+` WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.ChannelID, &inv.GuestID, &access, &inv.CreatedBy, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Invitation{}, chat.ErrInvitationNotFound
	}
	inv.Access = chat.AccessLevel(access)
	return inv, err
}

func (r pgInvitations) ForUser(ctx context.Context, guestID string) ([]chat.Invitation, error) {
	rows, err := r.t.tx.Query(ctx,
		`SELECT id, channel_id, guest_id, access, created_by, created_at
		   FROM `+r.t.ident("invitations")+`
		  WHERE guest_id = $1
		  ORDER BY id ASC`,
		guestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Invitation
	for rows.Next() {
		var (
			inv    chat.Invitation
			access string
		)
		if err := rows.Scan(&inv.ID, &inv.ChannelID, &inv.GuestID, &access, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.Access = chat.AccessLevel(access)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r pgInvitations) Remove(ctx context.Context, id string) error {
	_, err := r.t.tx.Exec(ctx,
		`DELETE FROM `+r.t.ident("invitations")+` WHERE id = $1`, id)
	return err
}

type pgMessages struct{ t pgTx }

func (r pgMessages) Create(ctx context.Context, m chat.Message) (chat.Message, error) {
	_, err := r.t.tx.Exec(ctx,
		`INSERT INTO `+r.t.ident("messages")+` (id, channel_id, sender_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ChannelID, m.SenderID, m.Text, m.CreatedAt,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (r pgMessages) OfChannel(ctx context.Context, channelID string) ([]chat.Message, error) {
	rows, err := r.t.tx.Query(ctx,
		`SELECT id, channel_id, sender_id, body, created_at
		   FROM `+r.t.ident("messages")+`
		  WHERE channel_id = $1
		  ORDER BY id ASC`,
		channelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
