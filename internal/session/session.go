// Package session tracks live, in-memory client sessions: one per
// connected client_id, never persisted across restarts or reconnects.
package session

import (
	"sync"

	"github.com/schoolmq/broker/internal/codec"
)

// User is the authenticated identity attached to a session once CONNECT
// succeeds.
type User struct {
	ID       int64
	Username string
	RoleID   int64
}

// pendingPublish is what a QoS-2 inbound PUBLISH parks while it waits for
// the matching PUBREL, so the PUBREL handler can dispatch the original
// message before replying PUBCOMP.
type pendingPublish struct {
	Topic   string
	Payload string
	Retain  bool
}

// Session is a single client's live connection state. It is never
// written to storage: losing it on process restart or abrupt disconnect
// is expected behavior, not data loss.
type Session struct {
	mu sync.Mutex

	ClientID string
	Writer   *codec.Writer
	User     *User
	Will     *codec.Will

	nextMsgID uint16
	pending   map[uint16]pendingPublish
}

// New creates a session for clientID, writing outbound packets to w.
func New(clientID string, w *codec.Writer) *Session {
	return &Session{
		ClientID:  clientID,
		Writer:    w,
		nextMsgID: 1,
		pending:   make(map[uint16]pendingPublish),
	}
}

// NextMsgID allocates the next packet identifier, wrapping from 0xFFFF
// back to 1 — 0 is never issued, per the wire protocol's reserved value.
func (s *Session) NextMsgID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextMsgID
	s.nextMsgID++
	if s.nextMsgID == 0 {
		s.nextMsgID = 1
	}
	return id
}

// ParkPubrec records an inbound QoS-2 PUBLISH awaiting its PUBREL, keyed
// by the packet ID the publisher used.
func (s *Session) ParkPubrec(id uint16, topic, payload string, retain bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = pendingPublish{Topic: topic, Payload: payload, Retain: retain}
}

// TakePubrec removes and returns the parked PUBLISH for id, if any. The
// caller uses this on PUBREL to know what to dispatch before sending
// PUBCOMP.
func (s *Session) TakePubrec(id uint16) (topic, payload string, retain bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, found := s.pending[id]
	if !found {
		return "", "", false, false
	}
	delete(s.pending, id)
	return p.Topic, p.Payload, p.Retain, true
}

// SetWill attaches the Last-Will-and-Testament to be fired on abrupt
// disconnect.
func (s *Session) SetWill(w *codec.Will) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Will = w
}

// GetWill returns the session's current will, or nil.
func (s *Session) GetWill() *codec.Will {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Will
}
