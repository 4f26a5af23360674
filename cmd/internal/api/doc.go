// Package api exposes the chat service over HTTP/JSON: account and session
// endpoints, channel lifecycle and membership, invitations, and message
// history. Live delivery is not here; it belongs to the realtime transports.
package api
