package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max message text length (runes).
	maxMessageChars = 4000
)

const (
	// Hub keepalive schedule: first beat shortly after startup, then a
	// steady period. Overridable via hub options.
	keepAliveInitialDelay = 3 * time.Second
	keepAlivePeriod       = 5 * time.Second

	// WebSocket-level ping defaults (can be overridden by env in
	// ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
