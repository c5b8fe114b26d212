// Package session owns the pool of per-user browser automation sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsavelyev/maitre/internal/browser"
)

var (
	// ErrCapacityExceeded is returned when the pool is full and no idle
	// session can be reclaimed to make room.
	ErrCapacityExceeded = errors.New("session pool at capacity")

	// ErrSessionBusy is returned when the user already has an automation
	// action in flight. Acquisition is rejected, never queued.
	ErrSessionBusy = errors.New("session already has an action in flight")
)

// Outcome describes the state of a session after one automation call.
type Outcome int

const (
	// OutcomeReusable returns the session to the idle pool.
	OutcomeReusable Outcome = iota
	// OutcomeUnrecoverable destroys the session: the browser state behind
	// a failed call is untrusted.
	OutcomeUnrecoverable
)

const closeTimeout = 30 * time.Second

// Session is one user's live automation session. At most one Session exists
// per user, and at most one in-flight action holds it at a time.
type Session struct {
	ID         string
	UserID     string
	Handle     *browser.Handle
	CreatedAt  time.Time
	lastUsedAt time.Time
	inUse      bool
}

// Pool manages browser sessions keyed by user ID, bounded by a global
// concurrency cap.
type Pool struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	backend     browser.Backend
	maxSessions int
	idleTimeout time.Duration
}

// NewPool creates a session pool over the given browser backend.
func NewPool(backend browser.Backend, maxSessions int, idleTimeout time.Duration) *Pool {
	return &Pool{
		sessions:    make(map[string]*Session),
		backend:     backend,
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
	}
}

// Acquire returns the user's session marked in-use, creating one if needed.
// It fails with ErrSessionBusy when the user's session is already held, and
// with ErrCapacityExceeded when the pool is full and nothing idle can be
// reclaimed.
func (p *Pool) Acquire(ctx context.Context, userID string) (*Session, error) {
	p.mu.Lock()

	if s, ok := p.sessions[userID]; ok {
		if s.inUse {
			p.mu.Unlock()
			return nil, ErrSessionBusy
		}
		s.inUse = true
		s.lastUsedAt = time.Now()
		p.mu.Unlock()
		return s, nil
	}

	var reclaimed *Session
	if len(p.sessions) >= p.maxSessions {
		reclaimed = p.evictIdleLocked()
		if reclaimed == nil {
			p.mu.Unlock()
			return nil, ErrCapacityExceeded
		}
	}

	// Reserve the user's slot before the backend call so a concurrent
	// acquire for the same user sees the session as busy, not absent.
	now := time.Now()
	pending := &Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		CreatedAt:  now,
		lastUsedAt: now,
		inUse:      true,
	}
	p.sessions[userID] = pending
	p.mu.Unlock()

	if reclaimed != nil {
		slog.Info("Reclaimed idle session to make room",
			"session_id", reclaimed.ID, "user_id", reclaimed.UserID)
		p.closeHandle(reclaimed)
	}

	handle, err := p.backend.Open(ctx, userID)
	if err != nil {
		p.mu.Lock()
		if p.sessions[userID] == pending {
			delete(p.sessions, userID)
		}
		p.mu.Unlock()
		return nil, fmt.Errorf("open browser session for %s: %w", userID, err)
	}

	p.mu.Lock()
	pending.Handle = handle
	p.mu.Unlock()

	slog.Info("Session created", "session_id", pending.ID, "user_id", userID)
	return pending, nil
}

// Release returns a session after one automation call. Reusable sessions go
// back to the idle pool with a refreshed last-used time; unrecoverable ones
// are destroyed.
func (p *Pool) Release(s *Session, outcome Outcome) {
	if s == nil {
		return
	}

	p.mu.Lock()
	current, ok := p.sessions[s.UserID]
	if !ok || current != s {
		// Session was destroyed while the call was in flight.
		p.mu.Unlock()
		p.closeHandle(s)
		return
	}

	s.inUse = false
	s.lastUsedAt = time.Now()

	if outcome == OutcomeUnrecoverable {
		delete(p.sessions, s.UserID)
		p.mu.Unlock()
		slog.Info("Session destroyed after unrecoverable outcome", "session_id", s.ID, "user_id", s.UserID)
		p.closeHandle(s)
		return
	}
	p.mu.Unlock()
}

// Destroy tears down the user's session. No-op if none exists.
func (p *Pool) Destroy(ctx context.Context, userID string) {
	p.mu.Lock()
	s, ok := p.sessions[userID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.sessions, userID)
	p.mu.Unlock()

	slog.Info("Session destroyed on request", "session_id", s.ID, "user_id", userID)
	if s.Handle != nil {
		if err := p.backend.Close(ctx, s.Handle); err != nil {
			slog.Warn("Failed to close browser session", "session_id", s.ID, "error", err)
		}
	}
}

// Reap destroys idle sessions whose last use is older than the idle
// timeout. Sessions with an action in flight are never touched. It returns
// the number of sessions destroyed.
func (p *Pool) Reap(ctx context.Context) int {
	cutoff := time.Now().Add(-p.idleTimeout)

	p.mu.Lock()
	var expired []*Session
	for userID, s := range p.sessions {
		if s.inUse || s.lastUsedAt.After(cutoff) {
			continue
		}
		delete(p.sessions, userID)
		expired = append(expired, s)
	}
	p.mu.Unlock()

	for _, s := range expired {
		slog.Info("Reaping idle session", "session_id", s.ID, "user_id", s.UserID)
		if s.Handle != nil {
			if err := p.backend.Close(ctx, s.Handle); err != nil {
				slog.Warn("Failed to close reaped session", "session_id", s.ID, "error", err)
			}
		}
	}
	return len(expired)
}

// Len returns the number of pooled sessions, in-use or idle.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Has reports whether a session exists for the user.
func (p *Pool) Has(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[userID]
	return ok
}

// evictIdleLocked removes and returns the least-recently-used idle session,
// or nil when every pooled session is in use. Caller holds p.mu and closes
// the returned session's handle.
func (p *Pool) evictIdleLocked() *Session {
	var oldest *Session
	for _, s := range p.sessions {
		if s.inUse {
			continue
		}
		if oldest == nil || s.lastUsedAt.Before(oldest.lastUsedAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil
	}
	delete(p.sessions, oldest.UserID)
	return oldest
}

// closeHandle releases a session's browser with a bounded deadline,
// independent of any caller context.
func (p *Pool) closeHandle(s *Session) {
	if s == nil || s.Handle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := p.backend.Close(ctx, s.Handle); err != nil {
		slog.Warn("Failed to close browser session", "session_id", s.ID, "user_id", s.UserID, "error", err)
	}
}
