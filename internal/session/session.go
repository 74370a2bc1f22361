// Package session tracks conversation state: per-client history, the
// attached remote executor if any, and transcript persistence.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drover-ai/drover/pkg/models"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("session not found")

// ToolTransport is the executor side of the remote tool channel as
// seen from a session. The channel package implements it.
type ToolTransport interface {
	Invoke(ctx context.Context, call models.ToolCall, deadline time.Duration) models.ToolResult
	Close() error
}

// Session is one conversation. History grows monotonically; the
// orchestrator owns it between turns and workers read a snapshot.
type Session struct {
	ID string
	// MemoryKey scopes long-term memory. Sessions for the same client
	// share a key so facts persist across conversations.
	MemoryKey string
	CreatedAt time.Time

	mu         sync.Mutex
	history    []models.Message
	transport  ToolTransport
	lastActive time.Time
}

// NewSession creates a session with a generated ID.
func NewSession(memoryKey string) *Session {
	now := time.Now()
	if memoryKey == "" {
		memoryKey = "default"
	}
	return &Session{
		ID:         uuid.NewString(),
		MemoryKey:  memoryKey,
		CreatedAt:  now,
		lastActive: now,
	}
}

// Append adds messages to the history.
func (s *Session) Append(msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	s.lastActive = time.Now()
}

// History returns a snapshot of the conversation so far.
func (s *Session) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of history entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Compact replaces all but the newest keep messages with a single
// summary message, preserving recency while bounding context size.
func (s *Session) Compact(summary string, keep int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(s.history) <= keep {
		return
	}

	tail := s.history[len(s.history)-keep:]
	compacted := make([]models.Message, 0, keep+1)
	compacted = append(compacted, models.Message{
		Role:      models.RoleAssistant,
		Content:   "Summary of earlier conversation: " + summary,
		CreatedAt: time.Now(),
	})
	compacted = append(compacted, tail...)
	s.history = compacted
}

// AttachTransport binds a remote executor connection to the session.
// Any previous transport is closed first.
func (s *Session) AttachTransport(t ToolTransport) {
	s.mu.Lock()
	prev := s.transport
	s.transport = t
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// DetachTransport removes the transport without closing it; the
// channel layer closes connections it owns.
func (s *Session) DetachTransport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = nil
}

// Transport returns the attached executor transport, or nil.
func (s *Session) Transport() ToolTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// LastActive returns the time of the most recent history append.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Manager owns the live session set.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new session under the given memory key.
func (m *Manager) Create(memoryKey string) *Session {
	s := NewSession(memoryKey)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove drops a session and closes its transport.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		if t := s.Transport(); t != nil {
			t.Close()
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle longer than maxIdle and returns how many
// were dropped.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		if t := s.Transport(); t != nil {
			t.Close()
		}
	}
	return len(stale)
}
