package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tavern/relay/internal/auth"
	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
	chatservice "github.com/zhouzirui/z-tavern/relay/internal/service/chat"
	"github.com/zhouzirui/z-tavern/relay/internal/service/status"
)

// ErrNoResponse is matched by every failed relay call.
var ErrNoResponse = errors.New("no response from model")

// FailureKind classifies a failed relay call.
type FailureKind string

const (
	FailureSigning  FailureKind = "signing"
	FailureNetwork  FailureKind = "network"
	FailureRejected FailureKind = "rejected"
	FailureUpstream FailureKind = "upstream"
	FailureEmpty    FailureKind = "empty"
)

// CallError describes why a relay call produced no response.
type CallError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay %s failure (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("relay %s failure: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNoResponse) match any CallError.
func (e *CallError) Is(target error) bool {
	return target == ErrNoResponse
}

const maxReplyBytes = 8 << 20

// ClientConfig configures the outbound side of the relay.
type ClientConfig struct {
	RemoteURL string
	Model     string
	Timeout   time.Duration
}

// Client sends the user's messages to the remote relay server, keeping the
// session and the speaking status in step with each call.
type Client struct {
	cfg     ClientConfig
	session *chatservice.Service
	tracker *status.Tracker
	signer  *auth.Signer
	http    *http.Client
	slot    chan struct{}
}

// NewClient wires a relay client. Calls are issued one at a time.
func NewClient(cfg ClientConfig, session *chatservice.Service, tracker *status.Tracker, signer *auth.Signer) *Client {
	if cfg.Model == "" {
		cfg.Model = relay.DefaultModel
	}
	return &Client{
		cfg:     cfg,
		session: session,
		tracker: tracker,
		signer:  signer,
		http:    &http.Client{Timeout: cfg.Timeout},
		slot:    make(chan struct{}, 1),
	}
}

// Ask relays message and returns the model's reply. Any failure is logged
// and returned as a *CallError matching ErrNoResponse; nothing is retried.
//
// ctx only bounds the wait for a free slot. Once the call is sent it runs to
// completion (or to the client timeout) even if the caller goes away.
func (c *Client) Ask(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", chatservice.ErrEmptyMessage
	}

	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.slot }()

	ctx = context.WithoutCancel(ctx)
	callID := uuid.NewString()

	if err := c.session.AppendUser(ctx, message); err != nil {
		log.Printf("[relay] call=%s warning: %v", callID, err)
	}

	c.tracker.BeginCall()
	defer c.tracker.EndCall()

	start := time.Now()
	reply, err := c.send(ctx, callID)
	if err != nil {
		log.Printf("[relay] call=%s failed after %s: %v", callID, time.Since(start).Round(time.Millisecond), err)
		return "", err
	}

	if err := c.session.AppendAssistant(ctx, reply); err != nil {
		log.Printf("[relay] call=%s warning: %v", callID, err)
	}
	log.Printf("[relay] call=%s answered in %s, length=%d", callID, time.Since(start).Round(time.Millisecond), len(reply))
	return reply, nil
}

func (c *Client) send(ctx context.Context, callID string) (string, error) {
	payload := relay.RequestPayload{
		Model:        c.cfg.Model,
		Prompt:       c.session.BuildPrompt(),
		SystemPrompt: c.session.SystemPrompt(),
	}

	signed, err := c.signer.Sign(payload)
	if err != nil {
		return "", &CallError{Kind: FailureSigning, Err: err}
	}
	body, err := auth.Canonicalize(payload)
	if err != nil {
		return "", &CallError{Kind: FailureSigning, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RemoteURL, bytes.NewReader(body))
	if err != nil {
		return "", &CallError{Kind: FailureNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(relay.HeaderTimestamp, strconv.FormatInt(signed.Timestamp, 10))
	req.Header.Set(relay.HeaderSignature, signed.Signature)
	req.Header.Set(relay.HeaderRequestID, callID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &CallError{Kind: FailureNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", &CallError{Kind: FailureNetwork, Err: fmt.Errorf("read reply: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := FailureUpstream
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = FailureRejected
		}
		return "", &CallError{Kind: kind, StatusCode: resp.StatusCode, Err: fmt.Errorf("server said: %s", bytes.TrimSpace(raw))}
	}

	var decoded relay.ModelResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &CallError{Kind: FailureUpstream, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode reply: %w", err)}
	}
	if decoded.Response == "" {
		return "", &CallError{Kind: FailureEmpty, StatusCode: resp.StatusCode, Err: errors.New("empty response field")}
	}
	return decoded.Response, nil
}
