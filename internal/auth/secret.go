package auth

import (
	"log"
	"sync"
)

// Secret holds the shared key for the lifetime of the process. The bytes are
// pinned in RAM where the platform allows it and zeroed on Close.
type Secret struct {
	mu     sync.Mutex
	data   []byte
	locked bool
	closed bool
}

// NewSecret copies source into a new buffer and zeroes source.
func NewSecret(source []byte) (*Secret, error) {
	if len(source) == 0 {
		return nil, ErrEmptySecret
	}

	data := make([]byte, len(source))
	copy(data, source)
	zero(source)

	secret := &Secret{data: data}
	if err := lockMemory(data); err != nil {
		// RLIMIT_MEMLOCK is often tiny in containers; the key still works.
		log.Printf("[auth] warning: could not lock secret in memory: %v", err)
	} else {
		secret.locked = true
	}
	return secret, nil
}

// Bytes returns the secret. Callers must not modify or retain the slice past
// Close. Panics after Close.
func (s *Secret) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("auth: read from closed secret")
	}
	return s.data
}

// Prefix returns at most n leading characters for a human to compare keys
// across machines.
func (s *Secret) Prefix(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || n <= 0 {
		return ""
	}
	if n > len(s.data) {
		n = len(s.data)
	}
	return string(s.data[:n])
}

// Close zeroes and releases the secret. It is idempotent.
func (s *Secret) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	zero(s.data)
	if s.locked {
		return unlockMemory(s.data)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
