package session

import (
	"context"
	"sync"

	"github.com/classhub/messaging/pkg/apperr"
)

// Session is what the external auth layer stores when a user logs in.
type Session struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Store resolves a session cookie during the WebSocket handshake. The
// platform's auth service owns the write side.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
}

// MemoryStore backs tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Put(sessionID string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sess
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperr.Unauthorized("unknown session")
	}
	return &sess, nil
}
