package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
)

// FileStore keeps the transcript as one JSON document that is rewritten
// wholesale on every save.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Path reports where the transcript lives.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes session to a temp file and renames it into place, so readers
// never see a half-written document.
func (s *FileStore) Save(_ context.Context, session chat.Session) error {
	if session.History == nil {
		session.History = []chat.Turn{}
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}

// Load reads the transcript from disk.
func (s *FileStore) Load(_ context.Context) (chat.Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return chat.Session{}, ErrNoTranscript
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("read transcript: %w", err)
	}

	var session chat.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return chat.Session{}, fmt.Errorf("%w: %v", ErrMalformedTranscript, err)
	}
	for _, turn := range session.History {
		if turn.Role != chat.RoleUser && turn.Role != chat.RoleAssistant {
			return chat.Session{}, fmt.Errorf("%w: unknown role %q", ErrMalformedTranscript, turn.Role)
		}
	}
	if session.History == nil {
		session.History = []chat.Turn{}
	}
	return session, nil
}

// Close is a no-op; the file is not held open between saves.
func (s *FileStore) Close() error {
	return nil
}
