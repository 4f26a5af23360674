package chat

import (
	"errors"
	"testing"
	"time"
)

func user(id string) User {
	return User{
		ID:                  id,
		Email:               id + "@example.com",
		Username:            "user-" + id,
		PasswordFingerprint: "fp",
		CreatedAt:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSingleChannelGuestSlot(t *testing.T) {
	t.Parallel()

	owner := user("owner")
	guest := user("guest")
	other := user("other")
	ch := SingleChannel{ID: "c1", Name: "pair", Owner: owner}

	next, err := ch.AddUser(guest, AccessReadWrite)
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	occupied := next.(SingleChannel)
	if occupied.Guest == nil || occupied.Guest.ID != guest.ID {
		t.Fatalf("guest = %+v, want %s", occupied.Guest, guest.ID)
	}
	// The original value is untouched.
	if ch.Guest != nil {
		t.Fatal("AddUser mutated the receiver")
	}

	if _, err := occupied.AddUser(other, AccessReadWrite); !errors.Is(err, ErrGuestAlreadyPresent) {
		t.Fatalf("second guest: err = %v, want ErrGuestAlreadyPresent", err)
	}

	if _, err := occupied.RemoveUser(other); !errors.Is(err, ErrNotGuest) {
		t.Fatalf("remove non-guest: err = %v, want ErrNotGuest", err)
	}
	emptied, err := occupied.RemoveUser(guest)
	if err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if emptied.(SingleChannel).Guest != nil {
		t.Fatal("guest slot not emptied")
	}
	if _, err := emptied.RemoveUser(guest); !errors.Is(err, ErrNoGuest) {
		t.Fatalf("remove from empty: err = %v, want ErrNoGuest", err)
	}
}

func TestGroupChannelAppendsWithoutDedup(t *testing.T) {
	t.Parallel()

	owner := user("owner")
	guest := user("guest")
	ch := GroupChannel{ID: "c1", Name: "room", Owner: owner, Visibility: VisibilityPrivate}

	once, err := ch.AddUser(guest, AccessReadOnly)
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	twice, err := once.AddUser(guest, AccessReadWrite)
	if err != nil {
		t.Fatalf("AddUser again: %v", err)
	}

	g := twice.(GroupChannel)
	if len(g.Guests) != 2 {
		t.Fatalf("guests = %d, want 2 (joins append)", len(g.Guests))
	}
	if len(ch.Guests) != 0 || len(once.(GroupChannel).Guests) != 1 {
		t.Fatal("AddUser mutated an earlier snapshot")
	}

	// Removing strips every entry for the user; a non-member remove is a
	// no-op.
	removed, err := twice.RemoveUser(guest)
	if err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if len(removed.(GroupChannel).Guests) != 0 {
		t.Fatalf("guests after remove = %+v", removed.(GroupChannel).Guests)
	}
	again, err := removed.RemoveUser(guest)
	if err != nil {
		t.Fatalf("RemoveUser absent: %v", err)
	}
	if len(again.(GroupChannel).Guests) != 0 {
		t.Fatal("no-op remove changed membership")
	}
}

func TestCanSendMessage(t *testing.T) {
	t.Parallel()

	owner := user("owner")
	guest := user("guest")
	stranger := user("stranger")

	single := SingleChannel{ID: "s1", Name: "pair", Owner: owner}
	occupied, _ := single.AddUser(guest, AccessReadWrite)

	publicGroup := GroupChannel{ID: "g1", Name: "open", Owner: owner, Visibility: VisibilityPublic}
	privateGroup := GroupChannel{ID: "g2", Name: "closed", Owner: owner, Visibility: VisibilityPrivate}
	privateRO, _ := privateGroup.AddUser(guest, AccessReadOnly)

	cases := []struct {
		name string
		ch   Channel
		user string
		want bool
	}{
		{"single owner", occupied, owner.ID, true},
		{"single guest", occupied, guest.ID, true},
		{"single stranger", occupied, stranger.ID, false},
		{"public group stranger", publicGroup, stranger.ID, true},
		{"private group owner", privateGroup, owner.ID, true},
		{"private group stranger", privateGroup, stranger.ID, false},
		{"private group read-only member", privateRO, guest.ID, false},
	}
	for _, tc := range cases {
		if got := CanSendMessage(tc.ch, tc.user); got != tc.want {
			t.Errorf("%s: CanSendMessage = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanSendMessageMostPermissiveWins(t *testing.T) {
	t.Parallel()

	owner := user("owner")
	guest := user("guest")
	g := GroupChannel{ID: "g1", Name: "room", Owner: owner, Visibility: VisibilityPrivate}

	ro, _ := g.AddUser(guest, AccessReadOnly)
	both, _ := ro.AddUser(guest, AccessReadWrite)

	if !CanSendMessage(both, guest.ID) {
		t.Fatal("guest with read_only AND read_write entries cannot send; most permissive must win")
	}
}

func TestCanRead(t *testing.T) {
	t.Parallel()

	owner := user("owner")
	guest := user("guest")
	stranger := user("stranger")

	publicGroup := GroupChannel{ID: "g1", Name: "open", Owner: owner, Visibility: VisibilityPublic}
	privateGroup := GroupChannel{ID: "g2", Name: "closed", Owner: owner, Visibility: VisibilityPrivate}
	privateMember, _ := privateGroup.AddUser(guest, AccessReadOnly)

	if !CanRead(publicGroup, stranger.ID) {
		t.Error("public group must be readable by anyone")
	}
	if CanRead(privateGroup, stranger.ID) {
		t.Error("private group must not be readable by strangers")
	}
	if !CanRead(privateMember, guest.ID) {
		t.Error("read-only member must be able to read")
	}
	if !CanRead(privateGroup, owner.ID) {
		t.Error("owner must be able to read")
	}
}

func TestNewUserValidation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := NewUser("u1", "alice@example.com", "alice", "fp", now); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}

	bad := []struct {
		name  string
		email string
		uname string
	}{
		{"missing at", "aliceexample.com", "alice"},
		{"missing domain", "alice@", "alice"},
		{"missing tld", "alice@example", "alice"},
		{"blank username", "alice@example.com", "   "},
	}
	for _, tc := range bad {
		if _, err := NewUser("u1", tc.email, tc.uname, "fp", now); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestNormalization(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
	if got := NormalizeUsername("  Alice "); got != "alice" {
		t.Errorf("NormalizeUsername = %q", got)
	}
}
