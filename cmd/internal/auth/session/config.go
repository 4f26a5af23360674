package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls token entropy size, the absolute and rolling lifetimes, and the
// per-user token pool bound.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// TokenBytes defines the number of random bytes used to generate opaque
	// bearer tokens.
	TokenBytes int

	// TokenTTL is the absolute token lifetime measured from creation. No
	// amount of activity extends a token past it.
	TokenTTL time.Duration

	// TokenRollingTTL is the idle window measured from last use. Each
	// successful resolve slides it forward.
	TokenRollingTTL time.Duration

	// MaxTokensPerUser bounds the number of live tokens a user may hold.
	// Issuing at the bound evicts the least recently used token.
	MaxTokensPerUser int
}

// DefaultConfig returns a secure default configuration suitable for
// development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		TokenBytes:       32,
		TokenTTL:         24 * time.Hour,
		TokenRollingTTL:  time.Hour,
		MaxTokensPerUser: 3,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - PARLEY_SESSION_TOKEN_BYTES
//   - PARLEY_SESSION_TOKEN_TTL
//   - PARLEY_SESSION_ROLLING_TTL
//   - PARLEY_SESSION_MAX_TOKENS_PER_USER
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("PARLEY_SESSION_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	if v := os.Getenv("PARLEY_SESSION_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TokenTTL = d
	}

	if v := os.Getenv("PARLEY_SESSION_ROLLING_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TokenRollingTTL = d
	}

	if v := os.Getenv("PARLEY_SESSION_MAX_TOKENS_PER_USER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, ErrConfig
		}
		cfg.MaxTokensPerUser = n
	}

	// Invariant: the idle window never exceeds the absolute lifetime.
	if cfg.TokenRollingTTL > cfg.TokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
