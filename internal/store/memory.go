package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
)

// MemoryStore implements Transcript in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *chat.Session
	saves   int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a copy of session.
func (s *MemoryStore) Save(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := session.Clone()
	s.session = &clone
	s.saves++
	return nil
}

// Load returns a copy of the last saved session.
func (s *MemoryStore) Load(_ context.Context) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return chat.Session{}, ErrNoTranscript
	}
	return s.session.Clone(), nil
}

// Saves reports how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close implements Transcript.
func (s *MemoryStore) Close() error {
	return nil
}
