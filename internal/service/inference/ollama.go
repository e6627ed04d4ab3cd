package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultOllamaURL is the generate endpoint of a local Ollama daemon.
const DefaultOllamaURL = "http://localhost:11434/api/generate"

const maxReplyBytes = 8 << 20

// OllamaBackend posts prompts to Ollama's /api/generate endpoint.
type OllamaBackend struct {
	url    string
	client *http.Client
}

// NewOllamaBackend returns a backend for url with a bounded request timeout.
func NewOllamaBackend(url string, timeout time.Duration) *OllamaBackend {
	if url == "" {
		url = DefaultOllamaURL
	}
	return &OllamaBackend{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Generate implements Backend.
func (b *OllamaBackend) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: req.Model, Prompt: req.Prompt})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("read reply: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(reply), 256)}
	}
	if !json.Valid(reply) {
		return nil, &UpstreamError{Err: errors.New("reply is not valid JSON")}
	}
	return json.RawMessage(reply), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
