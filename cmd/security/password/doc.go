// Package password provides the password-fingerprint capability for parley.
//
// Hashing uses Argon2id with an encoded-hash format compatible with the
// reference encoding ($argon2id$v=19$...). The chat layer consumes this
// package behind a small Hasher interface, so the algorithm stays pluggable.
package password
