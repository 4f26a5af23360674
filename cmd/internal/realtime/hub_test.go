package realtime

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"parley/cmd/internal/chat"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recListener struct {
	mu       sync.Mutex
	got      []Update
	failEmit bool
	shutdown []func()
}

func (l *recListener) Emit(u Update) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failEmit {
		return errors.New("emit failed")
	}
	l.got = append(l.got, u)
	return nil
}

func (l *recListener) OnShutdown(fn func()) {
	l.mu.Lock()
	l.shutdown = append(l.shutdown, fn)
	l.mu.Unlock()
}

func (l *recListener) close() {
	l.mu.Lock()
	fns := l.shutdown
	l.shutdown = nil
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (l *recListener) updates() []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Update(nil), l.got...)
}

func (l *recListener) messages() []MessageUpdate {
	var out []MessageUpdate
	for _, u := range l.updates() {
		if m, ok := u.(MessageUpdate); ok {
			out = append(out, m)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quietHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	// Keep the keepalive loop out of the way unless a test opts in.
	all := append([]HubOption{WithKeepAlive(time.Hour, time.Hour)}, opts...)
	h := NewHub(testLogger(), all...)
	t.Cleanup(h.Close)
	return h
}

func msg(id, channelID, text string) chat.Message {
	return chat.Message{
		ID:        id,
		ChannelID: channelID,
		SenderID:  "u1",
		Text:      text,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHubFansOutToAllChannelListeners(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	listeners := []*recListener{{}, {}, {}}
	for _, l := range listeners {
		h.Subscribe("c1", l)
	}

	h.PublishMessage("c1", msg("m1", "c1", "hello"))

	for i, l := range listeners {
		got := l.messages()
		if len(got) != 1 || got[0].Message.ID != "m1" {
			t.Fatalf("listener %d: messages = %+v, want one m1", i, got)
		}
	}
}

func TestHubIsolatesChannels(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	a := &recListener{}
	b := &recListener{}
	h.Subscribe("c1", a)
	h.Subscribe("c2", b)

	h.PublishMessage("c1", msg("m1", "c1", "hello"))

	if got := a.messages(); len(got) != 1 {
		t.Fatalf("c1 listener: %d messages, want 1", len(got))
	}
	if got := b.messages(); len(got) != 0 {
		t.Fatalf("c2 listener got leaked messages: %+v", got)
	}
}

func TestHubAssignsMonotonicEventIDs(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	l := &recListener{}
	h.Subscribe("c1", l)

	h.PublishMessage("c1", msg("m1", "c1", "one"))
	h.PublishMessage("c1", msg("m2", "c1", "two"))
	h.PublishMessage("c1", msg("m3", "c1", "three"))

	got := l.messages()
	if len(got) != 3 {
		t.Fatalf("messages = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].EventID <= got[i-1].EventID {
			t.Fatalf("event ids not monotonic: %d then %d", got[i-1].EventID, got[i].EventID)
		}
	}
}

func TestHubDropsFailingListenerAndKeepsRest(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	bad := &recListener{failEmit: true}
	good := &recListener{}
	h.Subscribe("c1", bad)
	h.Subscribe("c1", good)

	h.PublishMessage("c1", msg("m1", "c1", "one"))
	h.PublishMessage("c1", msg("m2", "c1", "two"))

	if got := good.messages(); len(got) != 2 {
		t.Fatalf("healthy listener: %d messages, want 2", len(got))
	}
	// The failing listener was removed after the first publish; allowing it
	// to emit again must not bring it back.
	bad.mu.Lock()
	bad.failEmit = false
	bad.mu.Unlock()
	h.PublishMessage("c1", msg("m3", "c1", "three"))
	if got := bad.updates(); len(got) != 0 {
		t.Fatalf("dropped listener still receiving: %+v", got)
	}
}

func TestHubListenerSelfCleanup(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	l := &recListener{}
	h.Subscribe("c1", l)

	// Simulate the transport ending on its own.
	l.close()

	h.PublishMessage("c1", msg("m1", "c1", "hello"))
	if got := l.updates(); len(got) != 0 {
		t.Fatalf("closed listener still receiving: %+v", got)
	}
}

func TestHubListenerGaugeIgnoresResubscribe(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	h := quietHub(t, WithMetrics(m))
	l := &recListener{}

	h.Subscribe("c1", l)
	h.Subscribe("c1", l)
	if got := testutil.ToFloat64(m.Listeners); got != 1 {
		t.Fatalf("listeners gauge = %v, want 1 after resubscribe", got)
	}

	h.Unsubscribe("c1", l)
	if got := testutil.ToFloat64(m.Listeners); got != 0 {
		t.Fatalf("listeners gauge = %v, want 0 after unsubscribe", got)
	}

	h.Unsubscribe("c1", l)
	if got := testutil.ToFloat64(m.Listeners); got != 0 {
		t.Fatalf("listeners gauge = %v, want 0 after duplicate unsubscribe", got)
	}
}

func TestHubUnsubscribeAbsentIsNoOp(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	h.Unsubscribe("c1", &recListener{})
	h.Unsubscribe("", nil)
}

func TestHubKeepAliveReachesAllChannels(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := NewHub(testLogger(),
		WithKeepAlive(5*time.Millisecond, 10*time.Millisecond),
		WithClock(chat.ClockFunc(func() time.Time { return at })))
	t.Cleanup(h.Close)

	a := &recListener{}
	b := &recListener{}
	h.Subscribe("c1", a)
	h.Subscribe("c2", b)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if hasKeepAlive(a) && hasKeepAlive(b) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("keepalives did not arrive: a=%d b=%d updates", len(a.updates()), len(b.updates()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, l := range []*recListener{a, b} {
		for _, u := range l.updates() {
			if ka, ok := u.(KeepAlive); ok && !ka.At.Equal(at) {
				t.Fatalf("keepalive timestamp = %v, want %v", ka.At, at)
			}
		}
	}
}

func hasKeepAlive(l *recListener) bool {
	for _, u := range l.updates() {
		if _, ok := u.(KeepAlive); ok {
			return true
		}
	}
	return false
}

func TestHubCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	h.Close()
	h.Close()
}
