// Package session tracks participant sessions by opaque cookie token.
// Sessions live in memory only; an interrupted study starts over.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/roadtones/captionstudy/internal/flow"
)

// DefaultTTL is how long an idle session stays valid.
const DefaultTTL = 24 * time.Hour

type entry struct {
	session *flow.Session
	expires time.Time
}

// Registry maps tokens to live sessions.
type Registry struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time

	sessions map[string]*entry
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create starts a fresh session and returns its token.
func (r *Registry) Create() (string, *flow.Session) {
	token := newToken()
	s := flow.NewSession()

	r.mu.Lock()
	r.sessions[token] = &entry{session: s, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return token, s
}

// Get resolves a token, refreshing its expiry. Expired tokens are dropped
// lazily here.
func (r *Registry) Get(token string) (*flow.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	if r.now().After(e.expires) {
		delete(r.sessions, token)
		return nil, false
	}
	e.expires = r.now().Add(r.ttl)
	return e.session, true
}

// Delete removes a session.
func (r *Registry) Delete(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// Cleanup drops every expired session and reports how many were removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for token, e := range r.sessions {
		if now.After(e.expires) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func newToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
