package router

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gpsalud/consultaflow/types"
)

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// turn is one completed user/assistant exchange.
type turn struct {
	user      string
	assistant string
}

// sessionStore holds per-session bounded history rings. Sessions never see
// each other's turns.
type sessionStore struct {
	mu       sync.Mutex
	maxTurns int
	rings    map[string][]turn
}

func newSessionStore(maxTurns int) *sessionStore {
	return &sessionStore{
		maxTurns: maxTurns,
		rings:    make(map[string][]turn),
	}
}

// messages returns the session history as alternating user/assistant
// messages, oldest first. Unknown sessions yield nil.
func (s *sessionStore) messages(sessionID string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.rings[sessionID]
	if len(ring) == 0 {
		return nil
	}
	out := make([]types.Message, 0, len(ring)*2)
	for _, t := range ring {
		out = append(out, types.UserMessage(t.user), types.AssistantMessage(t.assistant))
	}
	return out
}

// append records one exchange, evicting the oldest turn when the ring is
// full.
func (s *sessionStore) append(sessionID, user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.rings[sessionID], turn{user: user, assistant: assistant})
	if len(ring) > s.maxTurns {
		ring = ring[len(ring)-s.maxTurns:]
	}
	s.rings[sessionID] = ring
}

// reset forgets a session.
func (s *sessionStore) reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, sessionID)
}

// Reset clears the history of one session.
func (r *Router) Reset(sessionID string) {
	r.sessions.reset(sessionID)
}
