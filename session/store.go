// Package session is the single source of truth for "who is logged in".
// The store owns the credential pair and the identity claims decoded from
// the access token; the two are never allowed to disagree.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codecompass/compass-go/api"
	"github.com/codecompass/compass-go/credentials"
	"github.com/codecompass/compass-go/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Deps holds the store's collaborators.
type Deps struct {
	Credentials credentials.Repo
	API         *api.Client
}

// Store holds the session for one running client instance. Construct it
// once at process start and pass the reference to consumers.
type Store struct {
	deps    Deps
	logger  zerolog.Logger
	nowTime func() time.Time

	lock     sync.RWMutex
	identity *token.Claims
	pair     credentials.Pair
}

// StoreOption modifies a Store at construction time.
type StoreOption func(*Store)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) { s.nowTime = nowFunc }
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore initialises a Store with required dependencies.
func NewStore(deps Deps, options ...StoreOption) (*Store, error) {
	if deps.Credentials == nil {
		return nil, errors.New("[NewStore] Credentials repo is required")
	}
	if deps.API == nil {
		return nil, errors.New("[NewStore] API client is required")
	}

	store := &Store{
		deps:    deps,
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(store)
	}
	return store, nil
}

// Hydrate restores the session from persisted credentials. An absent pair
// leaves the session empty; an undecodable or expired access token clears
// persisted state and leaves the session empty. Neither case is an error.
func (s *Store) Hydrate() error {
	pair, err := s.deps.Credentials.Load()
	if errors.Is(err, credentials.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Store.Hydrate] Load")
	}

	claims := token.Decode(pair.Access)
	if claims == nil || claims.Expired(s.nowTime()) {
		s.logger.Info().Msg("stored access token invalid or expired, clearing session")
		s.clearLocal()
		return nil
	}

	s.lock.Lock()
	s.identity = claims
	s.pair = pair
	s.lock.Unlock()
	return nil
}

// Login authenticates with email and password. On failure the session is
// left unchanged.
func (s *Store) Login(ctx context.Context, email, password string) error {
	resp, err := s.deps.API.Login(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "[Store.Login]")
	}
	return s.saveSession(resp)
}

// Register creates an account and starts a session with the returned pair.
func (s *Store) Register(ctx context.Context, req api.RegisterRequest) error {
	resp, err := s.deps.API.Register(ctx, req)
	if err != nil {
		return errors.Wrap(err, "[Store.Register]")
	}
	return s.saveSession(resp)
}

// GoogleLogin exchanges a Google ID token for a platform session.
func (s *Store) GoogleLogin(ctx context.Context, credential string) error {
	resp, err := s.deps.API.GoogleAuth(ctx, credential)
	if err != nil {
		return errors.Wrap(err, "[Store.GoogleLogin]")
	}
	return s.saveSession(resp)
}

// CompleteGoogleSetup assigns a role to an identity-provider-created
// account that has none yet. Same save-session contract as Login.
func (s *Store) CompleteGoogleSetup(ctx context.Context, role string) error {
	resp, err := s.deps.API.SetRole(ctx, role)
	if err != nil {
		return errors.Wrap(err, "[Store.CompleteGoogleSetup]")
	}
	return s.saveSession(resp)
}

// MarkOnboarded patches the in-memory identity after onboarding completes
// server-side, avoiding a redundant round trip.
func (s *Store) MarkOnboarded() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.identity != nil {
		s.identity.IsOnboarded = true
	}
}

// Logout notifies the server best-effort, then clears local state. The
// local clear happens regardless of the network outcome.
func (s *Store) Logout(ctx context.Context) {
	s.lock.RLock()
	refresh := s.pair.Refresh
	s.lock.RUnlock()

	if refresh != "" {
		if err := s.deps.API.Logout(ctx, refresh); err != nil {
			s.logger.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
		}
	}
	s.clearLocal()
}

// Identity returns a copy of the current claims, or nil when logged out.
func (s *Store) Identity() *token.Claims {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// LoggedIn reports whether a session is active.
func (s *Store) LoggedIn() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.identity != nil
}

// AccessToken returns the current access token, or "" when logged out.
// It reads through to persistent storage: the request gateway rotates the
// access token there during refresh, and stale copies must never win.
func (s *Store) AccessToken() string {
	if pair, err := s.deps.Credentials.Load(); err == nil {
		return pair.Access
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.pair.Access
}

// saveSession persists the token pair and re-derives identity claims from
// the access token, falling back to the server-supplied user object for
// any field the token omits.
func (s *Store) saveSession(resp *api.AuthResponse) error {
	pair := credentials.Pair{Access: resp.Access, Refresh: resp.Refresh}
	if err := s.deps.Credentials.Save(pair); err != nil {
		return errors.Wrap(err, "[Store.saveSession] Save")
	}

	identity := claimsWithFallback(resp)

	s.lock.Lock()
	if pair.Refresh == "" {
		pair.Refresh = s.pair.Refresh
	}
	s.pair = pair
	s.identity = identity
	s.lock.Unlock()

	s.logger.Info().Str("role", identity.Role).Msg("session established")
	return nil
}

func claimsWithFallback(resp *api.AuthResponse) *token.Claims {
	identity := token.Decode(resp.Access)
	if identity == nil {
		identity = &token.Claims{}
	}

	user := resp.User
	if identity.SubjectID == "" {
		identity.SubjectID = user.ID
	}
	if identity.Email == "" {
		identity.Email = user.Email
	}
	if identity.FullName == "" {
		identity.FullName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	if identity.Role == "" {
		identity.Role = user.Role
	}
	if !identity.IsOnboarded {
		identity.IsOnboarded = user.IsOnboarded
	}
	return identity
}

// clearLocal empties the session and the persisted pair.
func (s *Store) clearLocal() {
	if err := s.deps.Credentials.Clear(); err != nil {
		s.logger.Err(err).Msg("failed to clear stored credentials")
	}

	s.lock.Lock()
	s.identity = nil
	s.pair = credentials.Pair{}
	s.lock.Unlock()
}
