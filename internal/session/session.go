package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// State is where the session stands.
type State int

const (
	Anonymous State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Authenticator is the part of the API client a session needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (entity.Token, error)
	Me(ctx context.Context) (entity.User, error)
}

// Session owns the credential for one user. It is passed explicitly to the
// code that needs it and is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	store     TokenStore
	token     string
	expiresAt time.Time
	user      *entity.User
	now       func() time.Time
	logger    *slog.Logger
}

// New loads any saved token from store.
func New(store TokenStore, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{store: store, now: time.Now, logger: logger}
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	s.setToken(tok)
	return s, nil
}

func (s *Session) setToken(tok string) {
	s.token = tok
	s.expiresAt = Expiry(tok)
	s.user = nil
}

// Expiry reads the exp claim of a JWT without verifying it. Tokens that are
// not JWTs, or carry no exp, never expire client side.
func Expiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// State reports the session state at the current time.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.token == "" {
		return Anonymous
	}
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return Expired
	}
	return Authenticated
}

// Token implements the API client's token source. Expired tokens are not
// handed out.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stateLocked() != Authenticated {
		return "", false
	}
	return s.token, true
}

// ExpiresAt is zero when the token has no known expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Login authenticates, persists the token and caches the user profile.
func (s *Session) Login(ctx context.Context, auth Authenticator, username, password string) (entity.User, error) {
	tok, err := auth.Login(ctx, username, password)
	if err != nil {
		s.logger.Warn("session.login.failed", "username", username, "error", err)
		return entity.User{}, err
	}
	if err := s.store.Save(tok.AccessToken); err != nil {
		return entity.User{}, fmt.Errorf("save token: %w", err)
	}
	s.mu.Lock()
	s.setToken(tok.AccessToken)
	s.mu.Unlock()

	user, err := auth.Me(ctx)
	if err != nil {
		s.logger.Warn("session.login.profile_failed", "username", username, "error", err)
		return entity.User{Username: username}, nil
	}
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	s.logger.Info("session.login.ok", "username", user.Username, "role", user.Role)
	return user, nil
}

// Adopt installs an externally obtained token, e.g. after a refresh.
func (s *Session) Adopt(token string) error {
	if err := s.store.Save(token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.mu.Lock()
	s.setToken(token)
	s.mu.Unlock()
	return nil
}

// Refresher trades a still-valid token for a new one.
type Refresher interface {
	Refresh(ctx context.Context) (entity.Token, error)
}

// Refresh replaces the token with a fresh one from r.
func (s *Session) Refresh(ctx context.Context, r Refresher) error {
	if s.State() != Authenticated {
		return common.NewKindError(common.CodeNotAuthenticated, common.ErrNotAuthenticated, "", nil)
	}
	tok, err := r.Refresh(ctx)
	if err != nil {
		s.logger.Warn("session.refresh.failed", "error", err)
		return err
	}
	if tok.AccessToken == "" {
		return common.NewAppError(common.CodeRemote, "refresh response carried no access token", common.ErrUnauthorized)
	}
	if err := s.Adopt(tok.AccessToken); err != nil {
		return err
	}
	s.logger.Info("session.refresh.ok", "expires_at", s.ExpiresAt())
	return nil
}

// ExpiresWithin reports whether a known expiry falls inside d from now.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiresAt.IsZero() && s.now().Add(d).After(s.expiresAt)
}

// Logout forgets the token locally. There is no server-side revocation.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.setToken("")
	s.mu.Unlock()
	return s.store.Clear()
}

// User returns the cached profile, fetching it when missing.
func (s *Session) User(ctx context.Context, auth Authenticator) (entity.User, error) {
	s.mu.RLock()
	u := s.user
	st := s.stateLocked()
	s.mu.RUnlock()
	if st != Authenticated {
		return entity.User{}, common.NewKindError(common.CodeNotAuthenticated, common.ErrNotAuthenticated, "", nil)
	}
	if u != nil {
		return *u, nil
	}
	user, err := auth.Me(ctx)
	if err != nil {
		return entity.User{}, err
	}
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return user, nil
}
