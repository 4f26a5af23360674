package realtime

import (
	"log/slog"
	"sync"
	"time"

	"parley/cmd/internal/chat"
)

// Hub owns the per-channel listener sets and assigns event ids. It satisfies
// chat.Notifier, so the service layer can publish committed messages without
// knowing about transports.
//
// Concurrency guarantees:
// - Subscribe/Unsubscribe are safe under concurrent Publish.
// - A failing listener is dropped without aborting the fan-out.
// - Close is idempotent and stops the keepalive loop.
type Hub struct {
	log     *slog.Logger
	clock   chat.Clock
	metrics *Metrics

	initialDelay time.Duration
	period       time.Duration

	mu          sync.Mutex
	listeners   map[string]map[Listener]struct{}
	nextEventID int64

	done      chan struct{}
	closeOnce sync.Once
}

// HubOption configures Hub behavior.
type HubOption func(*Hub)

// WithKeepAlive overrides the keepalive schedule. Non-positive values keep
// the defaults.
func WithKeepAlive(initialDelay, period time.Duration) HubOption {
	return func(h *Hub) {
		if initialDelay > 0 {
			h.initialDelay = initialDelay
		}
		if period > 0 {
			h.period = period
		}
	}
}

// WithMetrics attaches hub metrics.
func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithClock overrides the clock (tests).
func WithClock(c chat.Clock) HubOption {
	return func(h *Hub) {
		if c != nil {
			h.clock = c
		}
	}
}

// NewHub constructs a Hub and starts its keepalive loop.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		log:          log,
		clock:        chat.SystemClock(),
		initialDelay: keepAliveInitialDelay,
		period:       keepAlivePeriod,
		listeners:    make(map[string]map[Listener]struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	go h.keepAliveLoop()
	return h
}

// Subscribe adds l to channelID's listener set and wires self-cleanup: when
// the listener shuts down on its own it unsubscribes itself.
func (h *Hub) Subscribe(channelID string, l Listener) {
	if h == nil || channelID == "" || l == nil {
		return
	}

	h.mu.Lock()
	set, ok := h.listeners[channelID]
	if !ok {
		set = make(map[Listener]struct{})
		h.listeners[channelID] = set
	}
	_, present := set[l]
	set[l] = struct{}{}
	h.mu.Unlock()

	if present {
		return
	}

	l.OnShutdown(func() { h.Unsubscribe(channelID, l) })

	if h.metrics != nil {
		h.metrics.Listeners.Inc()
	}
	h.log.Info("hub.subscribe", "channel_id", channelID)
}

// Unsubscribe removes l from channelID's listener set. Removing an absent
// listener is a no-op.
func (h *Hub) Unsubscribe(channelID string, l Listener) {
	if h == nil || channelID == "" || l == nil {
		return
	}

	h.mu.Lock()
	set, ok := h.listeners[channelID]
	removed := false
	if ok {
		if _, present := set[l]; present {
			delete(set, l)
			removed = true
		}
		if len(set) == 0 {
			delete(h.listeners, channelID)
		}
	}
	h.mu.Unlock()

	if removed {
		if h.metrics != nil {
			h.metrics.Listeners.Dec()
		}
		h.log.Info("hub.unsubscribe", "channel_id", channelID)
	}
}

// PublishMessage fans a committed message out to channelID's listeners.
func (h *Hub) PublishMessage(channelID string, m chat.Message) {
	if h == nil {
		return
	}

	h.mu.Lock()
	h.nextEventID++
	update := MessageUpdate{EventID: h.nextEventID, Message: m}
	failed := h.emitLocked(channelID, update)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Events.WithLabelValues("message").Inc()
	}
	h.dropFailed(channelID, failed)
}

// emitLocked pushes u to every listener of channelID and returns the ones
// whose Emit failed. Callers must hold h.mu.
func (h *Hub) emitLocked(channelID string, u Update) []Listener {
	var failed []Listener
	for l := range h.listeners[channelID] {
		if err := l.Emit(u); err != nil {
			h.log.Info("hub.emit.fail", "channel_id", channelID, "event_id", EventID(u), "err", err)
			failed = append(failed, l)
		}
	}
	return failed
}

func (h *Hub) dropFailed(channelID string, failed []Listener) {
	for _, l := range failed {
		if h.metrics != nil {
			h.metrics.EmitFailures.Inc()
		}
		h.Unsubscribe(channelID, l)
	}
}

// Close stops the keepalive loop. Idempotent. Listeners are not torn down;
// their transports own their lifecycles.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) keepAliveLoop() {
	select {
	case <-h.done:
		return
	case <-time.After(h.initialDelay):
	}
	h.beat()

	t := time.NewTicker(h.period)
	defer t.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-t.C:
			h.beat()
		}
	}
}

// beat sends one keepalive to every listener on every channel.
func (h *Hub) beat() {
	now := h.clock.Now()

	type drop struct {
		channelID string
		listeners []Listener
	}
	var drops []drop

	h.mu.Lock()
	for channelID := range h.listeners {
		h.nextEventID++
		failed := h.emitLocked(channelID, KeepAlive{EventID: h.nextEventID, At: now})
		if len(failed) > 0 {
			drops = append(drops, drop{channelID: channelID, listeners: failed})
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Events.WithLabelValues("keepalive").Inc()
	}
	for _, d := range drops {
		h.dropFailed(d.channelID, d.listeners)
	}
}
