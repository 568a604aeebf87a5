// Package cowork implements the concurrency model behind the real-time
// co-editing session hub: per-session connection membership, presence,
// typing flags, and broadcast fan-out that excludes the sender. The
// wire protocol and UI layer are external collaborators (spec §1); only
// the concurrency model — membership maps, broadcast, disconnect
// reaping — is in scope here (spec §4.14).
//
// No teacher file implements a WebSocket surface at all (the teacher's
// repo has none), so this package is authored fresh, grounded on the
// teacher's general concurrency idiom used throughout the codebase:
// plain sync.Mutex-guarded maps, the same shape as
// pkg/tenant.IsolationChecker and pkg/consent.MapStore.
package cowork

import (
	"encoding/json"
	"sync"
	"time"
)

// MessageType enumerates the cowork wire protocol's message kinds.
type MessageType string

const (
	MsgMessage        MessageType = "message"
	MsgTyping         MessageType = "typing"
	MsgArtifactUpdate MessageType = "artifact_update"
	MsgStateSync      MessageType = "state_sync"
	MsgPing           MessageType = "ping"
	MsgPong           MessageType = "pong"
	MsgPresence       MessageType = "presence"
)

// Envelope is one message on the wire, in either direction.
type Envelope struct {
	Type    MessageType     `json:"type"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CoworkState is the server-authoritative snapshot returned for a
// state_sync request.
type CoworkState struct {
	DraftContent string    `json:"draft_content"`
	DraftVersion int       `json:"draft_version"`
	EditedBy     string    `json:"edited_by"`
	EditedAt     time.Time `json:"edited_at"`
	Presence     []string  `json:"presence"`
}

// ArtifactUpdate is the payload of an artifact_update message.
type ArtifactUpdate struct {
	Content string `json:"content"`
}

// Conn is the narrow send/close contract a concrete transport (a
// *websocket.Conn, or a test double) must satisfy. The hub never reads
// from a Conn directly — message dispatch is driven by the transport's
// own read loop calling Session.HandleMessage — so Conn only needs to
// describe how the hub writes back to, and disconnects, one peer.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// participant is one live connection within a session.
type participant struct {
	userID string
	conn   Conn
}

// Session is one cowork room: a set of connections, per-user typing
// flags, and the shared artifact draft state.
type Session struct {
	ID string

	mu      sync.Mutex
	conns   map[string]*participant // connID -> participant
	typing  map[string]bool         // userID -> typing
	state   CoworkState
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{
		ID:     id,
		conns:  make(map[string]*participant),
		typing: make(map[string]bool),
	}
}

// Join registers a connection under connID for userID and broadcasts
// updated presence to every connection in the session, the new one
// included.
func (s *Session) Join(connID, userID string, conn Conn) {
	s.mu.Lock()
	s.conns[connID] = &participant{userID: userID, conn: conn}
	presence := s.presenceLocked()
	s.mu.Unlock()

	s.broadcastLocked("", Envelope{Type: MsgPresence, Payload: mustJSON(presence)})
}

// Leave removes connID from the session's indexes (connection map and
// typing flags) and re-broadcasts presence to the remaining connections.
func (s *Session) Leave(connID string) {
	s.mu.Lock()
	p, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)
	if !s.userStillConnectedLocked(p.userID) {
		delete(s.typing, p.userID)
	}
	presence := s.presenceLocked()
	s.mu.Unlock()

	s.broadcastLocked("", Envelope{Type: MsgPresence, Payload: mustJSON(presence)})
}

func (s *Session) userStillConnectedLocked(userID string) bool {
	for _, p := range s.conns {
		if p.userID == userID {
			return true
		}
	}
	return false
}

func (s *Session) presenceLocked() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.conns {
		if !seen[p.userID] {
			seen[p.userID] = true
			out = append(out, p.userID)
		}
	}
	return out
}

// HandleMessage dispatches one inbound Envelope from connID, driven by
// the transport's own read loop. ping gets a direct pong reply (not a
// broadcast); typing and message broadcast to every other connection;
// artifact_update bumps draft_version, stamps edited_by, and broadcasts
// the new state; state_sync replies to the caller alone with the
// current CoworkState snapshot.
func (s *Session) HandleMessage(connID string, env Envelope) {
	switch env.Type {
	case MsgPing:
		s.mu.Lock()
		p, ok := s.conns[connID]
		s.mu.Unlock()
		if ok {
			s.writeTo(p, Envelope{Type: MsgPong})
		}

	case MsgStateSync:
		s.mu.Lock()
		p, ok := s.conns[connID]
		state := s.state
		s.mu.Unlock()
		if ok {
			s.writeTo(p, Envelope{Type: MsgStateSync, Payload: mustJSON(state)})
		}

	case MsgTyping:
		s.mu.Lock()
		p, ok := s.conns[connID]
		if ok {
			s.typing[p.userID] = true
		}
		s.mu.Unlock()
		s.broadcastLocked(connID, env)

	case MsgArtifactUpdate:
		var update ArtifactUpdate
		_ = json.Unmarshal(env.Payload, &update)
		s.mu.Lock()
		p, ok := s.conns[connID]
		if ok {
			s.state.DraftContent = update.Content
			s.state.DraftVersion++
			s.state.EditedBy = p.userID
			s.state.EditedAt = time.Now()
		}
		state := s.state
		s.mu.Unlock()
		s.broadcastLocked(connID, Envelope{Type: MsgArtifactUpdate, Payload: mustJSON(state)})

	case MsgMessage:
		s.broadcastLocked(connID, env)
	}
}

// Broadcast writes env to every connection in the session except
// excludeConnID, which may be "" to address every connection. A
// connection whose write fails is removed from the session and reaped
// from the same broadcast pass — the next Broadcast call never retries
// it.
func (s *Session) Broadcast(excludeConnID string, env Envelope) {
	s.broadcastLocked(excludeConnID, env)
}

func (s *Session) broadcastLocked(excludeConnID string, env Envelope) {
	s.mu.Lock()
	targets := make(map[string]*participant, len(s.conns))
	for id, p := range s.conns {
		if id == excludeConnID {
			continue
		}
		targets[id] = p
	}
	s.mu.Unlock()

	var dead []string
	for id, p := range targets {
		if err := p.conn.WriteJSON(env); err != nil {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}

	s.mu.Lock()
	for _, id := range dead {
		if p, ok := s.conns[id]; ok {
			_ = p.conn.Close()
			delete(s.conns, id)
		}
	}
	presence := s.presenceLocked()
	s.mu.Unlock()

	// Re-broadcast presence once, in the same pass, now that the dead
	// connections are gone — but never recurse into broadcastLocked
	// again if this presence write itself fails.
	s.mu.Lock()
	remaining := make(map[string]*participant, len(s.conns))
	for id, p := range s.conns {
		remaining[id] = p
	}
	s.mu.Unlock()
	presenceEnv := Envelope{Type: MsgPresence, Payload: mustJSON(presence)}
	for _, p := range remaining {
		_ = p.conn.WriteJSON(presenceEnv)
	}
}

func (s *Session) writeTo(p *participant, env Envelope) {
	_ = p.conn.WriteJSON(env)
}

// State returns a copy of the session's current CoworkState.
func (s *Session) State() CoworkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// Hub owns the set of live sessions, keyed by session ID.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it if absent.
func (h *Hub) GetOrCreate(id string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		s = NewSession(id)
		h.sessions[id] = s
	}
	return s
}

// Drop removes a session from the hub entirely (e.g. once every
// connection has left).
func (h *Hub) Drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}
