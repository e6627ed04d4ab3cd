package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/z-tavern/relay/internal/auth"
	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
	"github.com/zhouzirui/z-tavern/relay/internal/service/inference"
)

var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrInvalidSignature = errors.New("invalid signature or expired timestamp")
	ErrEmptyPrompt      = errors.New("prompt is required")
)

// Server authenticates signed requests and forwards them to the inference
// backend. It keeps no per-request state.
type Server struct {
	verifier *auth.Verifier
	backend  inference.Backend
}

// NewServer returns a relay server.
func NewServer(verifier *auth.Verifier, backend inference.Backend) *Server {
	return &Server{verifier: verifier, backend: backend}
}

// Handle verifies the raw timestamp and signature header values for payload
// and, only if they check out, returns the backend's reply verbatim.
// Backend failures come back as *inference.UpstreamError.
func (s *Server) Handle(ctx context.Context, payload relay.RequestPayload, timestamp, signature string) (json.RawMessage, error) {
	if timestamp == "" || signature == "" {
		return nil, ErrAuthRequired
	}

	if err := s.verifier.Check(payload, timestamp, signature); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if payload.Prompt == "" {
		return nil, ErrEmptyPrompt
	}

	model := payload.Model
	if model == "" {
		model = relay.DefaultModel
	}

	reply, err := s.backend.Generate(ctx, inference.GenerateRequest{Model: model, Prompt: payload.Prompt})
	if err != nil {
		return nil, err
	}
	log.Printf("[relay] forwarded prompt to model=%s, prompt_length=%d, reply_length=%d", model, len(payload.Prompt), len(reply))
	return reply, nil
}
