// Package session supplies the current viewer identity and its vote/like
// history. Reconciliation re-derives per-poll viewer state whenever the
// identity here changes.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/livepoll/pollstream/internal/api"
	"github.com/livepoll/pollstream/internal/models"
)

// Session holds the viewer's token and profile. It implements api.TokenSource.
type Session struct {
	tokens *TokenStore
	logger *zap.Logger

	mu       sync.Mutex
	client   *api.Client
	user     *models.CurrentUser
	onLogout []func()
	onChange []func(*models.CurrentUser)
}

// New creates a session over a token store. Bind the api client before use.
func New(tokens *TokenStore, logger *zap.Logger) *Session {
	return &Session{tokens: tokens, logger: logger}
}

// Bind attaches the api client and registers this session as its 401 hook.
// Split from New because the client needs the session as its token source.
func (s *Session) Bind(client *api.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	client.SetUnauthorizedHook(s.handleUnauthorized)
}

// Token implements api.TokenSource.
func (s *Session) Token() string {
	return s.tokens.Get()
}

// Authenticated reports whether a usable token is present.
func (s *Session) Authenticated() bool {
	return s.tokens.Get() != ""
}

// User returns the cached profile, nil when signed out.
func (s *Session) User() *models.CurrentUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// OnLogout registers a callback fired when the credential is cleared,
// whether by explicit logout or a server 401.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// OnChange registers a callback fired whenever the profile changes; nil
// means signed out. The store hangs its viewer-state rederive off this.
func (s *Session) OnChange(fn func(*models.CurrentUser)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Login exchanges credentials for a token and loads the profile.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	resp, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	s.tokens.Set(resp.AccessToken)
	return s.RefreshUser(ctx)
}

// Register creates an account and logs in.
func (s *Session) Register(ctx context.Context, email, password, name string) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if err := client.Register(ctx, email, password, name); err != nil {
		return err
	}
	return s.Login(ctx, email, password)
}

// Logout clears the credential and profile.
func (s *Session) Logout() {
	s.tokens.Clear()
	s.setUser(nil)
	s.fireLogout()
}

// RefreshUser reloads the profile from the server. A failed load clears the
// credential: a token the server will not honor is useless to keep.
func (s *Session) RefreshUser(ctx context.Context) error {
	if s.tokens.Get() == "" {
		s.setUser(nil)
		return nil
	}
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	user, err := client.Me(ctx)
	if err != nil {
		s.logger.Warn("profile refresh failed", zap.Error(err))
		s.tokens.Clear()
		s.setUser(nil)
		return err
	}
	s.setUser(&user)
	return nil
}

// Votes returns the viewer's vote records keyed by poll uuid.
func (s *Session) Votes() map[string]models.VotedPoll {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	return s.user.VoteByPoll()
}

// Likes returns the set of poll uuids the viewer has liked.
func (s *Session) Likes() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	return s.user.LikedSet()
}

// handleUnauthorized is the api client's 401 hook: clear the credential and
// emit the logout signal so the UI can prompt a re-login.
func (s *Session) handleUnauthorized() {
	s.tokens.Clear()
	s.setUser(nil)
	s.fireLogout()
}

func (s *Session) setUser(user *models.CurrentUser) {
	s.mu.Lock()
	s.user = user
	hooks := append([]func(*models.CurrentUser){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(user)
	}
}

func (s *Session) fireLogout() {
	s.mu.Lock()
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
