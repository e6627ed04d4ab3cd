// Package store persists the conversation transcript so an external
// inspector can read the live session.
package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
)

var (
	// ErrNoTranscript is returned by Load when nothing has been saved yet.
	ErrNoTranscript = errors.New("transcript not found")
	// ErrMalformedTranscript is returned by Load when the stored data cannot be decoded.
	ErrMalformedTranscript = errors.New("malformed transcript")
)

// Transcript defines durable storage for a single session.
type Transcript interface {
	// Save makes the stored transcript equal to session.
	Save(ctx context.Context, session chat.Session) error

	// Load returns the stored session.
	Load(ctx context.Context) (chat.Session, error)

	// Close releases underlying resources.
	Close() error
}
