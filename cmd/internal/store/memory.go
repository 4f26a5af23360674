package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"parley/cmd/internal/chat"
)

// Memory is the in-memory chat.Manager used for tests and database-less dev
// runs.
//
// Run holds one mutex for the whole unit of work, which serializes
// transactions completely (stronger than the read-committed minimum the
// service layer relies on). A snapshot of the state is taken on entry and
// restored when fn returns an error or panics, so a failed unit of work
// leaves no partial effects.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	users       map[string]chat.User
	tokens      map[string]chat.Token       // by fingerprint
	channels    map[string]chat.Channel     // immutable snapshots by id
	invitations map[string]chat.Invitation  // by id
	messages    map[string][]chat.Message   // by channel id
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() memState {
	return memState{
		users:       make(map[string]chat.User),
		tokens:      make(map[string]chat.Token),
		channels:    make(map[string]chat.Channel),
		invitations: make(map[string]chat.Invitation),
		messages:    make(map[string][]chat.Message),
	}
}

// snapshot copies the state. Map values are immutable domain values, so a
// shallow map copy suffices; message slices are copied because Create
// appends.
func (s memState) snapshot() memState {
	next := memState{
		users:       make(map[string]chat.User, len(s.users)),
		tokens:      make(map[string]chat.Token, len(s.tokens)),
		channels:    make(map[string]chat.Channel, len(s.channels)),
		invitations: make(map[string]chat.Invitation, len(s.invitations)),
		messages:    make(map[string][]chat.Message, len(s.messages)),
	}
	for k, v := range s.users {
		next.users[k] = v
	}
	for k, v := range s.tokens {
		next.tokens[k] = v
	}
	for k, v := range s.channels {
		next.channels[k] = v
	}
	for k, v := range s.invitations {
		next.invitations[k] = v
	}
	for k, v := range s.messages {
		next.messages[k] = append([]chat.Message(nil), v...)
	}
	return next
}

// Run executes fn against a consistent view. On error or panic the
// pre-transaction snapshot is restored.
func (m *Memory) Run(ctx context.Context, fn func(tx chat.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.state.snapshot()
	defer func() {
		if r := recover(); r != nil {
			m.state = saved
			panic(r)
		}
	}()

	if err := fn(memTx{s: &m.state, ctx: ctx}); err != nil {
		m.state = saved
		return err
	}
	return nil
}

// Clear wipes all state. Test support.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newMemState()
	return nil
}

type memTx struct {
	s   *memState
	ctx context.Context
}

func (t memTx) Users() chat.UserRepo             { return memUsers{t.s} }
func (t memTx) Tokens() chat.TokenRepo           { return memTokens{t.s} }
func (t memTx) Channels() chat.ChannelRepo       { return memChannels{t.s} }
func (t memTx) Invitations() chat.InvitationRepo { return memInvitations{t.s} }
func (t memTx) Messages() chat.MessageRepo       { return memMessages{t.s} }

type memUsers struct{ s *memState }

func (r memUsers) Create(_ context.Context, u chat.User) (chat.User, error) {
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return chat.User{}, chat.ErrEmailInUse
		}
		if existing.Username == u.Username {
			return chat.User{}, chat.ErrUsernameInUse
		}
	}
	r.s.users[u.ID] = u
	return u, nil
}

func (r memUsers) ByID(_ context.Context, id string) (chat.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, nil
}

func (r memUsers) ByEmail(_ context.Context, email string) (chat.User, error) {
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return chat.User{}, chat.ErrUserNotFound
}

func (r memUsers) ByUsername(_ context.Context, username string) (chat.User, error) {
	for _, u := range r.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return chat.User{}, chat.ErrUserNotFound
}

type memTokens struct{ s *memState }

func (r memTokens) Create(_ context.Context, t chat.Token) error {
	r.s.tokens[t.Fingerprint] = t
	return nil
}

func (r memTokens) ByFingerprint(_ context.Context, fp string) (chat.User, chat.Token, error) {
	t, ok := r.s.tokens[fp]
	if !ok {
		return chat.User{}, chat.Token{}, chat.ErrTokenNotFound
	}
	u, ok := r.s.users[t.UserID]
	if !ok {
		return chat.User{}, chat.Token{}, chat.ErrTokenNotFound
	}
	return u, t, nil
}

func (r memTokens) UpdateLastUsed(_ context.Context, fp string, at time.Time) error {
	t, ok := r.s.tokens[fp]
	if !ok {
		return chat.ErrTokenNotFound
	}
	t.LastUsedAt = at
	r.s.tokens[fp] = t
	return nil
}

func (r memTokens) Remove(_ context.Context, fp string) error {
	delete(r.s.tokens, fp)
	return nil
}

func (r memTokens) ByUser(_ context.Context, userID string) ([]chat.Token, error) {
	var out []chat.Token
	for _, t := range r.s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

type memChannels struct{ s *memState }

func (r memChannels) CreateSingle(_ context.Context, id, name string, owner chat.User) (chat.SingleChannel, error) {
	if err := r.checkName(name); err != nil {
		return chat.SingleChannel{}, err
	}
	ch := chat.SingleChannel{ID: id, Name: name, Owner: owner}
	r.s.channels[id] = ch
	return ch, nil
}

func (r memChannels) CreateGroup(_ context.Context, id, name string, owner chat.User, vis chat.Visibility) (chat.GroupChannel, error) {
	if err := r.checkName(name); err != nil {
		return chat.GroupChannel{}, err
	}
	ch := chat.GroupChannel{ID: id, Name: name, Owner: owner, Visibility: vis}
	r.s.channels[id] = ch
	return ch, nil
}

func (r memChannels) checkName(name string) error {
	for _, ch := range r.s.channels {
		if ch.ChannelName() == name {
			return chat.ErrNameInUse
		}
	}
	return nil
}

func (r memChannels) ByID(_ context.Context, id string) (chat.Channel, error) {
	ch, ok := r.s.channels[id]
	if !ok {
		return nil, chat.ErrChannelNotFound
	}
	return ch, nil
}

func (r memChannels) ByName(_ context.Context, name string) (chat.Channel, error) {
	for _, ch := range r.s.channels {
		if ch.ChannelName() == name {
			return ch, nil
		}
	}
	return nil, chat.ErrChannelNotFound
}

func (r memChannels) ByUser(_ context.Context, userID string) ([]chat.Channel, error) {
	var out []chat.Channel
	for _, ch := range r.s.channels {
		if chat.IsMember(ch, userID) {
			out = append(out, ch)
		}
	}
	sortChannels(out)
	return out, nil
}

func (r memChannels) ByOwner(_ context.Context, ownerID string) ([]chat.Channel, error) {
	var out []chat.Channel
	for _, ch := range r.s.channels {
		if ch.ChannelOwner().ID == ownerID {
			out = append(out, ch)
		}
	}
	sortChannels(out)
	return out, nil
}

func (r memChannels) Public(_ context.Context) ([]chat.Channel, error) {
	var out []chat.Channel
	for _, ch := range r.s.channels {
		if g, ok := ch.(chat.GroupChannel); ok && g.Visibility == chat.VisibilityPublic {
			out = append(out, ch)
		}
	}
	sortChannels(out)
	return out, nil
}

func (r memChannels) Save(_ context.Context, ch chat.Channel) (chat.Channel, error) {
	if _, ok := r.s.channels[ch.ChannelID()]; !ok {
		return nil, chat.ErrChannelNotFound
	}
	r.s.channels[ch.ChannelID()] = ch
	return ch, nil
}

func (r memChannels) Delete(_ context.Context, id string) error {
	if _, ok := r.s.channels[id]; !ok {
		return chat.ErrChannelNotFound
	}
	// Children before parent, mirroring the relational cascade order.
	for invID, inv := range r.s.invitations {
		if inv.ChannelID == id {
			delete(r.s.invitations, invID)
		}
	}
	delete(r.s.messages, id)
	delete(r.s.channels, id)
	return nil
}

func sortChannels(chs []chat.Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].ChannelID() < chs[j].ChannelID() })
}

type memInvitations struct{ s *memState }

func (r memInvitations) Create(_ context.Context, inv chat.Invitation) (chat.Invitation, error) {
	r.s.invitations[inv.ID] = inv
	return inv, nil
}

func (r memInvitations) ByID(_ context.Context, id string) (chat.Invitation, error) {
	inv, ok := r.s.invitations[id]
	if !ok {
		return chat.Invitation{}, chat.ErrInvitationNotFound
	}
	return inv, nil
}

func (r memInvitations) ForUser(_ context.Context, guestID string) ([]chat.Invitation, error) {
	var out []chat.Invitation
	for _, inv := range r.s.invitations {
		if inv.GuestID == guestID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memInvitations) Remove(_ context.Context, id string) error {
	delete(r.s.invitations, id)
	return nil
}

type memMessages struct{ s *memState }

func (r memMessages) Create(_ context.Context, m chat.Message) (chat.Message, error) {
	r.s.messages[m.ChannelID] = append(r.s.messages[m.ChannelID], m)
	return m, nil
}

func (r memMessages) OfChannel(_ context.Context, channelID string) ([]chat.Message, error) {
	msgs := r.s.messages[channelID]
	out := append([]chat.Message(nil), msgs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
