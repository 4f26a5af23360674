package chat

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// User is parley's canonical security principal.
//
// PasswordFingerprint is the opaque validation string produced by the hashing
// capability; the plain password is never stored.
type User struct {
	ID                  string
	Email               string
	Username            string
	PasswordFingerprint string
	CreatedAt           time.Time
}

// NewUser validates and constructs a User. Email must match a standard
// address pattern; email, username, and fingerprint must be non-blank.
func NewUser(id, email, username, fingerprint string, createdAt time.Time) (User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if id == "" || email == "" || username == "" || fingerprint == "" {
		return User{}, ErrInvalidInput
	}
	if !emailPattern.MatchString(email) {
		return User{}, ErrInvalidInput
	}

	return User{
		ID:                  id,
		Email:               email,
		Username:            username,
		PasswordFingerprint: fingerprint,
		CreatedAt:           createdAt,
	}, nil
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
