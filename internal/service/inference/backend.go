package inference

import (
	"context"
	"encoding/json"
	"fmt"
)

// GenerateRequest is what the relay server forwards to the model.
type GenerateRequest struct {
	Model  string
	Prompt string
}

// Backend runs a single non-streaming completion and returns the model's
// JSON reply as-is.
type Backend interface {
	Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error)
}

// UpstreamError reports that the inference daemon failed or was unreachable.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("inference upstream returned status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("inference upstream failed: %v", e.Err)
	default:
		return "inference upstream failed"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
