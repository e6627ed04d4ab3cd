package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
	"github.com/zhouzirui/z-tavern/relay/internal/store"
)

var ErrEmptyMessage = errors.New("message content is required")

// Service owns the live session. Every mutation is persisted before the lock
// is released, so the durable transcript trails memory by at most the
// mutation in progress.
type Service struct {
	mu         sync.RWMutex
	session    chat.Session
	transcript store.Transcript
}

// NewService starts a fresh session under systemPrompt and overwrites
// whatever transcript the store held from a previous run.
func NewService(ctx context.Context, systemPrompt string, transcript store.Transcript) (*Service, error) {
	s := &Service{
		session:    chat.NewSession(systemPrompt),
		transcript: transcript,
	}
	if err := s.Persist(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ResumeService continues the stored session if there is a readable one,
// otherwise it behaves like NewService.
func ResumeService(ctx context.Context, systemPrompt string, transcript store.Transcript) (*Service, error) {
	s := &Service{
		session:    chat.NewSession(systemPrompt),
		transcript: transcript,
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendUser records a user turn.
func (s *Service) AppendUser(ctx context.Context, text string) error {
	return s.append(ctx, chat.RoleUser, text)
}

// AppendAssistant records a model reply.
func (s *Service) AppendAssistant(ctx context.Context, text string) error {
	return s.append(ctx, chat.RoleAssistant, text)
}

func (s *Service) append(ctx context.Context, role chat.Role, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.History = append(s.session.History, chat.Turn{Role: role, Content: text})
	return s.persistLocked(ctx)
}

// BuildPrompt flattens the current session for the model.
func (s *Service) BuildPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.BuildPrompt()
}

// SystemPrompt returns the prompt fixed at session creation.
func (s *Service) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.SystemPrompt
}

// Snapshot returns a copy of the session.
func (s *Service) Snapshot() chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Persist writes the current session to the transcript store.
func (s *Service) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Service) persistLocked(ctx context.Context) error {
	if err := s.transcript.Save(ctx, s.session); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}
	return nil
}

// Load replaces the in-memory session with the stored one. A missing or
// unreadable transcript is replaced by a fresh session under the current
// system prompt instead of failing.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.transcript.Load(ctx)
	switch {
	case err == nil:
		s.session = loaded
		return nil
	case errors.Is(err, store.ErrNoTranscript):
		log.Printf("[chat] no stored transcript, starting a new session")
	default:
		log.Printf("[chat] discarding unreadable transcript: %v", err)
	}

	s.session = chat.NewSession(s.session.SystemPrompt)
	return s.persistLocked(ctx)
}
