// Package session manages user sessions added/removed via the
// AddUserSession/RemoveUserSession command kinds (spec §4.7 "Sessions").
// These are independent of transport-level Connections: a user session is
// an application-level identity a Command-mode caller registers and later
// tears down, e.g. to represent a logged-in web-dashboard user.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/duet3d/dcsd/internal/dcserr"
)

// Session is one registered user session.
type Session struct {
	ID     string
	Origin string // caller-supplied identifier, e.g. a remote address or login name
}

// Manager is a uuid-keyed session table guarded by an internal mutex,
// mirroring the endpoint registry's "map guarded by an internal mutex"
// policy from spec §5.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers a new session for origin and returns its id.
func (m *Manager) Add(origin string) *Session {
	s := &Session{ID: uuid.NewString(), Origin: origin}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Remove tears down a session by id, failing NotFound if it doesn't exist.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return dcserr.New(dcserr.NotFound, "no such session: %s", id)
	}
	delete(m.sessions, id)
	return nil
}

// List returns a snapshot of active sessions.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
