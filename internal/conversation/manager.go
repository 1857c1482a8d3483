// Package conversation owns per-session turn history with a bounded
// prompt window and an unbounded export snapshot.
package conversation

import (
	"iter"
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a session's history. RetrievedIDs carries the
// abstract record ids that grounded an assistant turn.
type Turn struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	RetrievedIDs []string  `json:"retrieved_ids,omitempty"`
}

type session struct {
	window  []Turn // bounded view used to build prompts
	archive []Turn // full pre-eviction sequence, kept for export
}

// Manager holds one conversation per session id. All operations on a given
// session are serialized by the manager's lock; callers that need a whole
// exchange to be atomic hold their own per-session lock on top.
type Manager struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string]*session
}

// NewManager bounds every session's prompt window to maxTurns turns.
func NewManager(maxTurns int) *Manager {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &Manager{
		maxTurns: maxTurns,
		sessions: make(map[string]*session),
	}
}

// Append adds a turn at the end of the session's history. When the window
// exceeds the configured bound the oldest turns are evicted first, but the
// most recent user turn is never evicted: it is the turn that triggered the
// exchange currently being recorded.
func (m *Manager) Append(sessionID, role, content string, retrievedIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[sessionID]
	if s == nil {
		s = &session{}
		m.sessions[sessionID] = s
	}

	turn := Turn{
		Role:         role,
		Content:      content,
		Timestamp:    time.Now().UTC(),
		RetrievedIDs: append([]string(nil), retrievedIDs...),
	}
	s.window = append(s.window, turn)
	s.archive = append(s.archive, turn)

	for len(s.window) > m.maxTurns {
		if lastUserIndex(s.window) == 0 {
			break
		}
		s.window = s.window[1:]
	}
}

// Reset clears the session's history. Resetting an unknown or already empty
// session is a no-op.
func (m *Manager) Reset(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// History yields the most recent maxTurns turns of the session's window in
// chronological order. The sequence is computed over a snapshot, so it can
// be ranged over repeatedly and outside the manager's lock.
func (m *Manager) History(sessionID string, maxTurns int) iter.Seq[Turn] {
	m.mu.Lock()
	var snapshot []Turn
	if s := m.sessions[sessionID]; s != nil {
		window := s.window
		if maxTurns >= 0 && len(window) > maxTurns {
			window = window[len(window)-maxTurns:]
		}
		snapshot = append(snapshot, window...)
	}
	m.mu.Unlock()

	return func(yield func(Turn) bool) {
		for _, t := range snapshot {
			if !yield(t) {
				return
			}
		}
	}
}

// Export returns an immutable snapshot of the full turn sequence retained
// for the session, including turns already evicted from the prompt window.
// The snapshot is never nil, so it serializes as a JSON array even for an
// unknown or reset session.
func (m *Manager) Export(sessionID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[sessionID]
	if s == nil {
		return []Turn{}
	}
	out := make([]Turn, len(s.archive))
	for i, t := range s.archive {
		t.RetrievedIDs = append([]string(nil), t.RetrievedIDs...)
		out[i] = t
	}
	return out
}

func lastUserIndex(turns []Turn) int {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
