// Package session holds the signed-in shopper's session: who they are, the bearer token used
// for API calls and everything that must be torn down on logout.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	// ErrMissingToken indicates login credentials without a bearer token.
	ErrMissingToken = errors.New("session: missing token")
	// ErrMissingUser indicates the user could be determined neither from the credentials nor the token.
	ErrMissingUser = errors.New("session: missing user id")
	// ErrUserMismatch indicates the supplied user id differs from the token subject.
	ErrUserMismatch = errors.New("session: user does not match token subject")
	// ErrTokenExpired indicates the token had already expired at login.
	ErrTokenExpired = errors.New("session: token expired")
)

// Credentials are supplied at login.
type Credentials struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Locale string `json:"locale,omitempty"`
}

// Session is created at login and closed at logout.
type Session struct {
	ID        string
	UserID    string
	Token     string
	Locale    string
	CreatedAt time.Time
	ExpiresAt time.Time

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// New creates a session for creds. A JWT token is decoded without verification (the API
// verifies it on every call) to take the user id from its subject and to cap the session
// lifetime at the token expiry. Opaque tokens require an explicit user id.
func New(creds Credentials, ttl time.Duration, now time.Time) (*Session, error) {
	token := strings.TrimSpace(creds.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	userID := strings.TrimSpace(creds.UserID)
	expires := now.Add(ttl)

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if claims.Subject != "" {
			if userID != "" && userID != claims.Subject {
				return nil, ErrUserMismatch
			}
			userID = claims.Subject
		}
		if claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.Time
			if !exp.After(now) {
				return nil, ErrTokenExpired
			}
			if exp.Before(expires) {
				expires = exp
			}
		}
	}
	if userID == "" {
		return nil, ErrMissingUser
	}

	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		Locale:    strings.TrimSpace(creds.Locale),
		CreatedAt: now,
		ExpiresAt: expires,
	}, nil
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// OnClose registers fn to run when the session closes. Registering on a closed session runs
// fn immediately.
func (s *Session) OnClose(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

// Close runs the registered hooks in reverse order. Only the first call has an effect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
