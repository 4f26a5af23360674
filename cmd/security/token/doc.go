// Package token provides the opaque-token codec for parley.
//
// It is the single source of truth for bearer-token generation and
// fingerprinting.
//
// Design goals:
//   - Raw tokens are fixed-length cryptographically random byte strings,
//     base64url encoded with no padding. They cross the wire once and are
//     never persisted or logged by the server.
//   - The server stores only a fingerprint: HMAC-SHA256(token, key) when
//     PARLEY_TOKEN_HMAC_KEY is set, SHA-256(token) otherwise (dev fallback).
//   - Stable 64-char hex output for storage and exact-match lookup.
//
// Environment:
// - PARLEY_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
