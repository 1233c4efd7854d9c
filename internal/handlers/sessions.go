package handlers

import (
	"sync"
	"time"

	"finance-tracker/internal/tracker"
)

// SessionDuration is how long sessions last (30 days).
const SessionDuration = 30 * 24 * time.Hour

// timeNow is stubbed in tests.
var timeNow = time.Now

type sessionEntry struct {
	sess      *tracker.Session
	expiresAt time.Time
}

// sessionRegistry maps session cookie tokens to live sessions. Session
// state (including the cached salary) is per-process, so a restart
// logs everyone out. Sessions are rolling: looking one up in the
// second half of its lifetime renews it, while idle sessions expire.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]sessionEntry)}
}

func (r *sessionRegistry) get(token string) (*tracker.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	now := timeNow()
	if !e.expiresAt.After(now) {
		delete(r.sessions, token)
		return nil, false
	}
	if e.expiresAt.Sub(now) < SessionDuration/2 {
		e.expiresAt = now.Add(SessionDuration)
		r.sessions[token] = e
	}
	return e.sess, true
}

func (r *sessionRegistry) put(token string, s *tracker.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := timeNow()
	for t, e := range r.sessions {
		if !e.expiresAt.After(now) {
			delete(r.sessions, t)
		}
	}
	r.sessions[token] = sessionEntry{sess: s, expiresAt: now.Add(SessionDuration)}
}

func (r *sessionRegistry) remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}
