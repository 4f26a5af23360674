package realtime

import (
	"errors"
	"sync"

	v1 "parley/shared/contracts/realtime/v1"
)

// Client represents one connected websocket session. It is also a hub
// Listener: hub updates are rendered to envelopes and placed on the bounded
// send queue.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from
//   concurrent emitters.
// - A full queue fails the Emit, so a slow consumer is dropped by the hub
//   instead of stalling a channel.
// - Close is idempotent.
type Client struct {
	SessionID string
	UserID    string
	Send      chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	shutdown []func()
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Emit queues a hub update for the writer goroutine.
func (c *Client) Emit(u Update) error {
	select {
	case <-c.Done():
		return errors.New("realtime: client closed")
	default:
	}

	select {
	case c.Send <- envelopeFor(u):
		return nil
	default:
		return errors.New("realtime: send queue full")
	}
}

// OnShutdown registers fn to run when the client closes. If the client is
// already closed, fn runs immediately.
func (c *Client) OnShutdown(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		fn()
		return
	default:
	}
	c.shutdown = append(c.shutdown, fn)
	c.mu.Unlock()
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop and runs shutdown callbacks
// (idempotent). It does NOT close Send to keep emits safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		fns := c.shutdown
		c.shutdown = nil
		c.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
	})
}
