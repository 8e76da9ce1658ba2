package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

var (
	// ErrNoAccessToken is returned when a user is set without a token to
	// back it.
	ErrNoAccessToken = errors.New("session: no access token")

	// ErrWatchUnsupported is returned by Watch when the persister cannot
	// report external changes.
	ErrWatchUnsupported = errors.New("session: persister does not support watching")

	// ErrSessionChanged is returned by RotateAccessToken when the session
	// it was asked to update has since been replaced or cleared.
	ErrSessionChanged = errors.New("session: session changed")
)

// Store is the single source of truth for the access token, refresh token and
// user profile. Every mutation is written through to the Persister before the
// call returns, so a restart never forces a new login.
//
// A persistence failure is returned to the caller, but the in-memory state is
// already updated by then: the current process keeps working even when the
// backing storage does not. Readers never wait on the persister.
type Store struct {
	mu      sync.RWMutex
	state   State
	version uint64

	// persistMu serialises persister calls. persisted is the version last
	// handed to the persister; older versions are never written over it.
	persistMu sync.Mutex
	persisted uint64

	persister Persister
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for watch reloads.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store backed by p. A nil persister keeps state in
// memory only. Call Hydrate to load previously persisted state.
func NewStore(p Persister, opts ...Option) *Store {
	if p == nil {
		p = NewMemoryStore()
	}
	s := &Store{
		persister: p,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hydrate replaces the in-memory state with what the persister holds.
func (s *Store) Hydrate(ctx context.Context) error {
	st, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}

	s.mu.Lock()
	s.state = st.normalize()
	s.mu.Unlock()
	return nil
}

// Watch keeps the store in sync with changes other processes make to the
// persisted state. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.persister.(Watcher)
	if !ok {
		return ErrWatchUnsupported
	}

	return w.Watch(ctx, func(st State) {
		s.mu.Lock()
		s.state = st.normalize()
		s.mu.Unlock()
		s.logger.Debug("session state reloaded", "authenticated", st.AccessToken != "")
	})
}

func (s *Store) update(ctx context.Context, fn func(st *State) error) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next.normalize()
	s.version++
	version, snap := s.version, s.state.clone()
	s.mu.Unlock()

	return s.persist(ctx, version, snap)
}

func (s *Store) persist(ctx context.Context, version uint64, st State) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if version <= s.persisted {
		// A later mutation already reached the persister.
		return nil
	}
	s.persisted = version

	var err error
	if st == (State{}) {
		err = s.persister.Clear(ctx)
	} else {
		err = s.persister.Save(ctx, st)
	}
	if err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}

// SetAccessToken replaces the access token.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	return s.update(ctx, func(st *State) error {
		st.AccessToken = token
		return nil
	})
}

// SetRefreshToken replaces the refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.update(ctx, func(st *State) error {
		st.RefreshToken = token
		return nil
	})
}

// RemoveAccessToken drops the access token and, with it, the user.
func (s *Store) RemoveAccessToken(ctx context.Context) error {
	return s.update(ctx, func(st *State) error {
		st.AccessToken = ""
		st.User = nil
		return nil
	})
}

// RemoveRefreshToken drops the refresh token and keeps everything else.
func (s *Store) RemoveRefreshToken(ctx context.Context) error {
	return s.update(ctx, func(st *State) error {
		st.RefreshToken = ""
		return nil
	})
}

// SetUser replaces the user profile wholesale.
func (s *Store) SetUser(ctx context.Context, u *User) error {
	return s.update(ctx, func(st *State) error {
		if u != nil && st.AccessToken == "" {
			return ErrNoAccessToken
		}
		st.User = u.Clone()
		return nil
	})
}

// PatchUser applies fn to a copy of the current user. Only meant for merging
// fields from trusted server responses.
func (s *Store) PatchUser(ctx context.Context, fn func(u *User)) error {
	return s.update(ctx, func(st *State) error {
		if st.User == nil {
			return nil
		}
		fn(st.User)
		return nil
	})
}

// RotateAccessToken installs a refreshed access token, and the user when u is
// non-nil, but only while the session still holds refreshToken and an access
// token. Otherwise it returns ErrSessionChanged and leaves the state alone,
// so a refresh that lands after a logout cannot revive the session.
func (s *Store) RotateAccessToken(ctx context.Context, refreshToken, accessToken string, u *User) error {
	return s.update(ctx, func(st *State) error {
		if refreshToken == "" || st.RefreshToken != refreshToken || st.AccessToken == "" {
			return ErrSessionChanged
		}
		if accessToken == "" {
			return ErrNoAccessToken
		}
		st.AccessToken = accessToken
		if u != nil {
			st.User = u.Clone()
		}
		return nil
	})
}

// SetAuth installs a login payload: user and both tokens in one write.
func (s *Store) SetAuth(ctx context.Context, a Auth) error {
	return s.update(ctx, func(st *State) error {
		if a.Token == "" {
			return ErrNoAccessToken
		}
		st.AccessToken = a.Token
		st.RefreshToken = a.RefreshToken
		st.User = a.User.Clone()
		return nil
	})
}

// Clear forgets the tokens and the user. The base URL override survives, it
// is a preference rather than session state.
func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, func(st *State) error {
		*st = State{BaseURL: st.BaseURL}
		return nil
	})
}

// SetBaseURL sets the backend URL override. An empty url removes it.
func (s *Store) SetBaseURL(ctx context.Context, url string) error {
	return s.update(ctx, func(st *State) error {
		st.BaseURL = url
		return nil
	})
}

// AccessToken returns the access token, or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

// RefreshToken returns the refresh token, or "".
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User.Clone()
}

// BaseURL returns the backend URL override, or "".
func (s *Store) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.BaseURL
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// IsAccessTokenExpired reports true when there is no usable access token:
// absent, malformed, lacking exp, or past exp.
func (s *Store) IsAccessTokenExpired() bool {
	return jwtx.Expired(s.AccessToken(), s.now())
}
