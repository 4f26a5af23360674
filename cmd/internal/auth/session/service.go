package session

import (
	"context"
	"errors"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/security/token"
)

// Service implements the bearer-token session operations. It satisfies
// chat.SessionManager.
//
// All failure modes of Resolve collapse into chat.ErrNoSession so a caller
// probing with stolen or guessed tokens learns nothing about why a token was
// rejected.
type Service struct {
	cfg   Config
	mgr   chat.Manager
	clock chat.Clock
}

// NewService constructs a Service over the given store manager and clock.
func NewService(cfg Config, mgr chat.Manager, clock chat.Clock) *Service {
	return &Service{cfg: cfg, mgr: mgr, clock: clock}
}

// Issue creates a token for u and returns the raw value with its effective
// expiry. The raw value exists only in memory; the store receives a
// fingerprint.
//
// Pool bound: if u already holds MaxTokensPerUser live tokens, the least
// recently used one is evicted in the same unit of work, so concurrent
// issues can never leave the pool above the bound. Expired tokens found
// during the scan are pruned instead of counted.
func (s *Service) Issue(ctx context.Context, u chat.User) (string, time.Time, error) {
	raw, err := token.NewOpaque(s.cfg.TokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	fp := token.Fingerprint(raw)

	now := s.clock.Now()
	err = s.mgr.Run(ctx, func(tx chat.Tx) error {
		existing, err := tx.Tokens().ByUser(ctx, u.ID)
		if err != nil {
			return err
		}

		live := existing[:0:0]
		for _, t := range existing {
			if s.timeValid(t, now) {
				live = append(live, t)
				continue
			}
			if err := tx.Tokens().Remove(ctx, t.Fingerprint); err != nil {
				return err
			}
		}

		for len(live) >= s.cfg.MaxTokensPerUser {
			lru := live[0]
			for _, t := range live[1:] {
				if t.LastUsedAt.Before(lru.LastUsedAt) {
					lru = t
				}
			}
			if err := tx.Tokens().Remove(ctx, lru.Fingerprint); err != nil {
				return err
			}
			next := live[:0]
			for _, t := range live {
				if t.Fingerprint != lru.Fingerprint {
					next = append(next, t)
				}
			}
			live = next
		}

		return tx.Tokens().Create(ctx, chat.Token{
			Fingerprint: fp,
			UserID:      u.ID,
			CreatedAt:   now,
			LastUsedAt:  now,
		})
	})
	if err != nil {
		return "", time.Time{}, err
	}

	return raw, s.expiryOf(now, now), nil
}

// Resolve returns the user owning raw if the token is well formed, known,
// and inside both lifetime windows, refreshing the idle window as a side
// effect. Everything else is chat.ErrNoSession.
func (s *Service) Resolve(ctx context.Context, raw string) (chat.User, error) {
	// Shape check first: a value that cannot be one of our tokens never
	// touches the store.
	if !token.CanBeToken(raw, s.cfg.TokenBytes) {
		return chat.User{}, chat.ErrNoSession
	}
	fp := token.Fingerprint(raw)

	now := s.clock.Now()
	var user chat.User
	err := s.mgr.Run(ctx, func(tx chat.Tx) error {
		u, t, err := tx.Tokens().ByFingerprint(ctx, fp)
		if err != nil {
			if errors.Is(err, chat.ErrTokenNotFound) {
				return chat.ErrNoSession
			}
			return err
		}
		if !s.timeValid(t, now) {
			// Lazy prune: the token is dead either way.
			if err := tx.Tokens().Remove(ctx, fp); err != nil {
				return err
			}
			return chat.ErrNoSession
		}
		if err := tx.Tokens().UpdateLastUsed(ctx, fp, now); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return chat.User{}, err
	}
	return user, nil
}

// Revoke deletes the session behind raw. Revoking a malformed or unknown
// token is a no-op.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	if !token.CanBeToken(raw, s.cfg.TokenBytes) {
		return nil
	}
	fp := token.Fingerprint(raw)
	return s.mgr.Run(ctx, func(tx chat.Tx) error {
		return tx.Tokens().Remove(ctx, fp)
	})
}

// timeValid reports whether t is alive at now: created in the past, inside
// the absolute lifetime, and inside the idle window.
func (s *Service) timeValid(t chat.Token, now time.Time) bool {
	if t.CreatedAt.After(now) {
		return false
	}
	if now.Sub(t.CreatedAt) > s.cfg.TokenTTL {
		return false
	}
	if now.Sub(t.LastUsedAt) > s.cfg.TokenRollingTTL {
		return false
	}
	return true
}

// expiryOf is the moment the token dies absent further activity: whichever
// of the absolute deadline and the idle deadline comes first.
func (s *Service) expiryOf(createdAt, lastUsedAt time.Time) time.Time {
	absolute := createdAt.Add(s.cfg.TokenTTL)
	rolling := lastUsedAt.Add(s.cfg.TokenRollingTTL)
	if rolling.Before(absolute) {
		return rolling
	}
	return absolute
}
