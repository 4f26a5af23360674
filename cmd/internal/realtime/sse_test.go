package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley/cmd/internal/chat"
)

type stubAuth struct {
	user chat.User
	err  error
}

func (s stubAuth) ByToken(_ context.Context, _ string) (chat.User, error) {
	return s.user, s.err
}

type stubAccess struct {
	canRead bool
	err     error
}

func (s stubAccess) CanUserRead(_ context.Context, _, _ string) (bool, error) {
	return s.canRead, s.err
}

func (s stubAccess) SendMessage(_ context.Context, _, _, _ string) (chat.Message, error) {
	return chat.Message{}, nil
}

func TestSSEListenerWritesFrames(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	l, err := NewSSEListener(rec)
	if err != nil {
		t.Fatalf("NewSSEListener: %v", err)
	}

	if err := l.Emit(MessageUpdate{EventID: 7, Message: msg("m1", "c1", "hello")}); err != nil {
		t.Fatalf("Emit message: %v", err)
	}
	if err := l.Emit(KeepAlive{EventID: 8, At: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("Emit keepalive: %v", err)
	}

	body := rec.Body.String()
	for _, want := range []string{"id: 7\n", "event: message.new\n", `"message_id":"m1"`, "id: 8\n", "event: keepalive\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestSSEListenerRejectsEmitAfterClose(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	l, err := NewSSEListener(rec)
	if err != nil {
		t.Fatalf("NewSSEListener: %v", err)
	}

	ran := false
	l.OnShutdown(func() { ran = true })
	l.Close()
	if !ran {
		t.Fatal("shutdown callback did not run on Close")
	}

	if err := l.Emit(KeepAlive{EventID: 1, At: time.Now()}); err == nil {
		t.Fatal("Emit after Close succeeded, want error")
	}
}

func TestSSEHandlerRejectsBadAuthAndAccess(t *testing.T) {
	t.Parallel()

	h := quietHub(t)

	cases := []struct {
		name   string
		auth   stubAuth
		access stubAccess
		want   int
	}{
		{"no session", stubAuth{err: chat.ErrNoSession}, stubAccess{canRead: true}, http.StatusUnauthorized},
		{"unknown channel", stubAuth{user: chat.User{ID: "u1"}}, stubAccess{err: chat.ErrChannelNotFound}, http.StatusNotFound},
		{"no read access", stubAuth{user: chat.User{ID: "u1"}}, stubAccess{canRead: false}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewSSEHandler(testLogger(), h, tc.auth, tc.access)

			req := httptest.NewRequest(http.MethodGet, "/channels/c1/events", nil)
			req.SetPathValue("id", "c1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSSEHandlerStreamsPublishedMessages(t *testing.T) {
	t.Parallel()

	h := quietHub(t)
	handler := NewSSEHandler(testLogger(), h,
		stubAuth{user: chat.User{ID: "u1"}}, stubAccess{canRead: true})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/channels/c1/events?token=tok", nil).WithContext(ctx)
	req.SetPathValue("id", "c1")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		subscribed := len(h.listeners["c1"]) == 1
		h.mu.Unlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(2 * time.Millisecond)
	}

	h.PublishMessage("c1", msg("m1", "c1", "hello"))
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: message.new") || !strings.Contains(body, `"message_id":"m1"`) {
		t.Fatalf("stream missing published message:\n%s", body)
	}

	h.mu.Lock()
	left := len(h.listeners["c1"])
	h.mu.Unlock()
	if left != 0 {
		t.Fatalf("listener not cleaned up: %d left", left)
	}
}
