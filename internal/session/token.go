package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStore keeps the identity token in memory with optional file
// persistence, the terminal analogue of the browser's localStorage slot.
// An expired token is treated as absent.
type TokenStore struct {
	mu    sync.Mutex
	path  string // empty disables persistence
	token string
}

// NewTokenStore creates a store, loading any persisted token from path.
func NewTokenStore(path string) *TokenStore {
	s := &TokenStore{path: path}
	if path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			if token := string(raw); tokenUsable(token) {
				s.token = token
			}
		}
	}
	return s
}

// Get returns the current token, or empty when signed out or expired.
func (s *TokenStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && !tokenUsable(s.token) {
		s.clearLocked()
	}
	return s.token
}

// Set stores and persists a token.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if s.path != "" {
		_ = os.MkdirAll(filepath.Dir(s.path), 0o700)
		_ = os.WriteFile(s.path, []byte(token), 0o600)
	}
}

// Clear forgets the token and removes the persisted copy.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *TokenStore) clearLocked() {
	s.token = ""
	if s.path != "" {
		_ = os.Remove(s.path)
	}
}

// tokenUsable checks shape and expiry without verifying the signature; the
// signature is the server's concern and the server rejects forgeries with a
// 401 anyway.
func tokenUsable(token string) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}
