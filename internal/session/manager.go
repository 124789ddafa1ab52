package session

import (
	"context"
	"sync"

	"github.com/schoolmq/broker/internal/codec"
)

// WillPublisher fires a session's Last-Will-and-Testament. The broker
// package's Router implements this by dispatching the will through the
// normal PUBLISH path.
type WillPublisher interface {
	PublishWill(ctx context.Context, clientID string, will *codec.Will) error
}

// TakeoverObserver is notified when a CONNECT evicts a live session for
// the same client_id, so the caller can audit-log the takeover and purge
// routing state (subscriptions) for the evicted session.
type TakeoverObserver interface {
	OnTakeover(clientID string)
}

// Manager holds every live session, keyed by client_id. Exactly one
// session exists per client_id at a time: a second CONNECT evicts the
// prior one. Nothing here is ever persisted — restart loses all
// sessions, by design.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	willPublisher WillPublisher
	onTakeover    TakeoverObserver
}

// NewManager creates an empty session manager.
func NewManager(willPublisher WillPublisher, onTakeover TakeoverObserver) *Manager {
	return &Manager{
		sessions:      make(map[string]*Session),
		willPublisher: willPublisher,
		onTakeover:    onTakeover,
	}
}

// CreateSession installs a new session for clientID, evicting and
// disconnecting any prior session under the same client_id (session
// takeover). The evicted session's will is NOT fired: takeover is not an
// abrupt disconnect of the old client, it is superseded by the new one.
func (m *Manager) CreateSession(clientID string, w *codec.Writer) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[clientID]; exists {
		if m.onTakeover != nil {
			m.onTakeover.OnTakeover(clientID)
		}
	}

	s := New(clientID, w)
	m.sessions[clientID] = s
	return s
}

// Get returns the live session for clientID, if any.
func (m *Manager) Get(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// Terminate removes clientID's session. If abrupt is true (the
// connection dropped without a DISCONNECT) and a will is set, it is
// published before the session is discarded.
func (m *Manager) Terminate(ctx context.Context, clientID string, abrupt bool) {
	m.mu.Lock()
	s, ok := m.sessions[clientID]
	if ok {
		delete(m.sessions, clientID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	if abrupt {
		if will := s.GetWill(); will != nil && m.willPublisher != nil {
			_ = m.willPublisher.PublishWill(ctx, clientID, will)
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
