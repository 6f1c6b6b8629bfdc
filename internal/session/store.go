package session

import (
	"sync"
	"time"
)

// Store is the in-process registry of live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty registry.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{sessions: make(map[string]*Session), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put registers sess.
func (s *Store) Put(sess *Session) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

// Get returns a live session. An expired session is removed and closed.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, id)
		s.mu.Unlock()
		sess.Close()
		return nil, false
	}
	s.mu.Unlock()
	return sess, true
}

// Delete removes and closes the session.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
	return ok
}

// Sweep closes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range expired {
		sess.Close()
	}
	return len(expired)
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseAll closes every session, used at shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
}
