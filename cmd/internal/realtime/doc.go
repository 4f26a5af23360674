// Package realtime fans committed chat events out to live listeners.
//
// The Hub keeps per-channel listener sets in memory and pushes two kinds of
// update: new messages (published by the service layer after commit) and
// periodic keepalives. Listeners that fail to accept an update or disconnect
// on their own are dropped without disturbing the rest of the channel.
//
// Two transports sit on top of the Hub: an SSE handler for one-channel
// streams and a WebSocket gateway for interactive sessions.
package realtime
