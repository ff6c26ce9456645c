package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session scopes one play attempt. Once cancelled it stays cancelled.
type Session struct {
	ID        uint64
	TrackID   int64
	CreatedAt time.Time

	cancelled atomic.Bool
}

// Cancel is idempotent.
func (s *Session) Cancel() {
	if s != nil {
		s.cancelled.Store(true)
	}
}

func (s *Session) Cancelled() bool {
	return s == nil || s.cancelled.Load()
}

// Sessions mints play sessions for one tenant. Minting supersedes the
// previous session.
type Sessions struct {
	mu      sync.Mutex
	nextID  uint64
	current *Session
	now     func() time.Time
}

func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{now: now}
}

// Mint cancels the current session and installs a new one bound to trackID.
func (s *Sessions) Mint(trackID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Cancel()
	s.nextID++
	s.current = &Session{ID: s.nextID, TrackID: trackID, CreatedAt: s.now()}
	return s.current
}

func (s *Sessions) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsCurrent reports whether sess is live and still the installed session.
func (s *Sessions) IsCurrent(sess *Session) bool {
	if sess.Cancelled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == sess
}

// CancelCurrent cancels the installed session without replacing it.
func (s *Sessions) CancelCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Cancel()
}
