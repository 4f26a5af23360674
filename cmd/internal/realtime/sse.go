package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"parley/cmd/internal/chat"
)

// SSEListener adapts one Server-Sent Events response into a hub Listener.
//
// Emit never invokes shutdown callbacks itself: the hub drops a listener on
// the first Emit error, and the serving goroutine calls Close when the
// request context ends.
type SSEListener struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	closed   bool
	shutdown []func()
}

// NewSSEListener wraps w. The response writer must support flushing.
func NewSSEListener(w http.ResponseWriter) (*SSEListener, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("realtime: response writer does not support flushing")
	}
	return &SSEListener{w: w, flusher: flusher}, nil
}

// Emit writes one SSE frame. The event id carries the hub event id so
// clients can detect gaps.
func (l *SSEListener) Emit(u Update) error {
	env := envelopeFor(u)
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("realtime: listener closed")
	}

	if _, err := fmt.Fprintf(l.w, "id: %s\nevent: %s\ndata: %s\n\n",
		strconv.FormatInt(EventID(u), 10), env.Type, data); err != nil {
		l.closed = true
		return err
	}
	l.flusher.Flush()
	return nil
}

// OnShutdown registers fn to run when the stream ends. If the listener is
// already closed, fn runs immediately.
func (l *SSEListener) OnShutdown(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		fn()
		return
	}
	l.shutdown = append(l.shutdown, fn)
	l.mu.Unlock()
}

// Close marks the listener dead and runs the shutdown callbacks once.
func (l *SSEListener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	fns := l.shutdown
	l.shutdown = nil
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// SSEHandler streams one channel's live updates over Server-Sent Events.
//
// Mount it at a route exposing an "id" path value, e.g.
// GET /channels/{id}/events.
type SSEHandler struct {
	log    *slog.Logger
	hub    *Hub
	auth   Authenticator
	access ChannelAccess
}

// NewSSEHandler constructs an SSEHandler.
func NewSSEHandler(log *slog.Logger, hub *Hub, auth Authenticator, access ChannelAccess) *SSEHandler {
	return &SSEHandler{log: log, hub: hub, auth: auth, access: access}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimSpace(r.PathValue("id"))
	if channelID == "" {
		http.Error(w, "missing channel id", http.StatusBadRequest)
		return
	}

	user, err := h.auth.ByToken(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ok, err := h.access.CanUserRead(r.Context(), channelID, user.ID)
	if err != nil {
		if errors.Is(err, chat.ErrChannelNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.log.Error("sse.access.fail", "channel_id", channelID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	listener, err := NewSSEListener(w)
	if err != nil {
		h.log.Error("sse.listener.fail", "err", err)
		return
	}

	h.hub.Subscribe(channelID, listener)
	h.log.Info("sse.stream.open", "channel_id", channelID, "user_id", user.ID)

	<-r.Context().Done()
	listener.Close()
	h.log.Info("sse.stream.close", "channel_id", channelID, "user_id", user.ID)
}

// bearerToken extracts the token from the Authorization header, falling back
// to the "token" query parameter because EventSource cannot set headers.
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
