package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultIdleTTL is how long an untouched session is kept
const DefaultIdleTTL = 2 * time.Hour

type sessionKey struct {
	userID      string
	challengeID string
}

type entry struct {
	session  *Session
	lastUsed time.Time
}

// Registry holds the live editor sessions keyed by user and challenge
type Registry struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*entry
	deps     *Deps
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		sessions: make(map[sessionKey]*entry),
		deps:     &deps,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open loads the challenge into a fresh session, replacing any previous one.
// A missing challenge returns ErrChallengeNotFound and registers nothing.
func (r *Registry) Open(ctx context.Context, userID, challengeID string) (*Session, error) {
	s := NewSession(r.deps, userID, challengeID)
	s.now = r.now
	if err := s.Load(ctx); err != nil {
		return s, err
	}

	r.mu.Lock()
	r.sessions[sessionKey{userID, challengeID}] = &entry{session: s, lastUsed: r.now()}
	r.mu.Unlock()

	return s, nil
}

// Get returns the open session and marks it used
func (r *Registry) Get(userID, challengeID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionKey{userID, challengeID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastUsed = r.now()
	return e.session, nil
}

// CloseUser drops every session of a user and returns how many were open
func (r *Registry) CloseUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for key := range r.sessions {
		if key.userID == userID {
			delete(r.sessions, key)
			closed++
		}
	}
	return closed
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many were removed
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.sessions {
		if ctx.Err() != nil {
			break
		}
		if e.lastUsed.Before(cutoff) {
			delete(r.sessions, key)
			removed++
			slog.Debug("editor session expired", "user_id", key.userID, "challenge_id", key.challengeID)
		}
	}
	return removed
}
