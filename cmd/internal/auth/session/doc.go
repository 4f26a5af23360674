// Package session implements opaque bearer-token sessions with a rolling
// idle window, an absolute lifetime, and a bounded per-user token pool.
//
// Raw tokens are random and never persisted; the store only ever sees a
// fingerprint. Resolving a token refreshes its idle window. Issuing past the
// per-user bound silently evicts the least recently used token, so a user's
// pool can never grow without limit.
package session
